package main

import "github.com/KevinAiCloud/InterviewAI/cmd/admissions/cmd"

func main() {
	cmd.Execute()
}
