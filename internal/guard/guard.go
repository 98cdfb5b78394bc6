// Package guard decides whether a protected page may render for a session.
package guard

import (
	"github.com/KevinAiCloud/InterviewAI/internal/roles"
	"github.com/KevinAiCloud/InterviewAI/internal/session"
)

// LoginPath is where principals without a session are sent.
const LoginPath = "/login"

// HomePath is where principals lacking the required role are sent.
const HomePath = "/"

// Kind is the outcome of a guard evaluation.
type Kind int

const (
	// Pending means the initial session is still unknown; render a neutral loader.
	Pending Kind = iota
	// Redirect means navigate to Target.
	Redirect
	// Allow means render the page.
	Allow
)

func (k Kind) String() string {
	switch k {
	case Pending:
		return "pending"
	case Redirect:
		return "redirect"
	case Allow:
		return "allow"
	default:
		return "unknown"
	}
}

// Decision is the result of Evaluate.
type Decision struct {
	Kind Kind
	// Target is the redirect location
	Target string
	// Intent is the location to return to after sign-in; empty when none
	Intent string
}

// Evaluate gates location for state. require is roles.None for pages any
// signed-in principal may see.
func Evaluate(state session.State, location string, require roles.Role) Decision {
	switch {
	case !state.Resolved:
		return Decision{Kind: Pending}
	case state.Principal == nil:
		return Decision{Kind: Redirect, Target: LoginPath, Intent: location}
	case require != roles.None && state.Role != require:
		return Decision{Kind: Redirect, Target: HomePath}
	default:
		return Decision{Kind: Allow}
	}
}
