package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KevinAiCloud/InterviewAI/internal/auth"
	"github.com/KevinAiCloud/InterviewAI/internal/roles"
	"github.com/KevinAiCloud/InterviewAI/internal/session"
)

func TestEvaluate_PendingWhileUnresolved(t *testing.T) {
	principals := []*auth.Principal{nil, {ID: "uid-1"}}
	roleValues := []roles.Role{roles.None, roles.User, roles.Admin}
	requires := []roles.Role{roles.None, roles.Admin}

	for _, p := range principals {
		for _, role := range roleValues {
			for _, req := range requires {
				state := session.State{Principal: p, Role: role, Resolved: false}
				assert.Equal(t, Decision{Kind: Pending}, Evaluate(state, "/quiz", req),
					"principal=%v role=%q require=%q", p, role, req)
			}
		}
	}
}

func TestEvaluate(t *testing.T) {
	user := &auth.Principal{ID: "uid-1", Email: "a@example.com"}

	tests := []struct {
		name     string
		state    session.State
		location string
		require  roles.Role
		want     Decision
	}{
		{
			name:     "no principal redirects to login with intent",
			state:    session.State{Resolved: true},
			location: "/quiz",
			want:     Decision{Kind: Redirect, Target: "/login", Intent: "/quiz"},
		},
		{
			name:     "intent keeps the query",
			state:    session.State{Resolved: true},
			location: "/admin?type=video",
			require:  roles.Admin,
			want:     Decision{Kind: Redirect, Target: "/login", Intent: "/admin?type=video"},
		},
		{
			name:     "user on admin page goes home without intent",
			state:    session.State{Principal: user, Role: roles.User, Resolved: true},
			location: "/admin",
			require:  roles.Admin,
			want:     Decision{Kind: Redirect, Target: "/"},
		},
		{
			name:     "unresolved role on admin page goes home",
			state:    session.State{Principal: user, Role: roles.None, Resolved: true},
			location: "/admin",
			require:  roles.Admin,
			want:     Decision{Kind: Redirect, Target: "/"},
		},
		{
			name:     "admin on admin page",
			state:    session.State{Principal: user, Role: roles.Admin, Resolved: true},
			location: "/admin",
			require:  roles.Admin,
			want:     Decision{Kind: Allow},
		},
		{
			name:     "signed in without required role",
			state:    session.State{Principal: user, Resolved: true},
			location: "/resume",
			want:     Decision{Kind: Allow},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.state, tt.location, tt.require))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "redirect", Redirect.String())
	assert.Equal(t, "allow", Allow.String())
}
