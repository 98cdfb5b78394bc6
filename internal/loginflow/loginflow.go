// Package loginflow implements the sign-in page: form validation, submission
// to the session store, classification of failures into user-facing messages,
// and the state-driven redirect once a principal is present.
//
// Submitting never navigates. The page redirects only when Render sees a
// signed-in snapshot, so the destination never depends on which call
// returned first.
package loginflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/KevinAiCloud/InterviewAI/internal/auth"
	"github.com/KevinAiCloud/InterviewAI/internal/logging"
	"github.com/KevinAiCloud/InterviewAI/internal/session"
	"github.com/KevinAiCloud/InterviewAI/internal/telemetry"
)

// Mode selects the sign-in method.
type Mode string

const (
	ModeSignIn    Mode = "signin"
	ModeSignUp    Mode = "signup"
	ModeFederated Mode = "google"
)

// ParseMode returns the mode named by s, defaulting to sign in.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeSignUp:
		return ModeSignUp
	case ModeFederated:
		return ModeFederated
	default:
		return ModeSignIn
	}
}

// User-facing messages.
const (
	MsgMissingFields   = "Please enter both email and password"
	MsgInvalidEmail    = "Please enter a valid email address"
	MsgSignInFailed    = "Failed to sign in. Check your email/password."
	MsgSignUpFailed    = "Failed to create account. Password should be 6+ chars."
	MsgFederatedFailed = "Failed to sign in with Google."
	MsgNetwork         = "Unable to reach the sign-in service. Please try again."
)

// Form is a submitted credential form.
type Form struct {
	Mode     Mode
	Email    string
	Password string
}

// Validate checks that both fields are present and the email is well formed.
func (f Form) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Email,
			validation.Required.Error(MsgMissingFields),
			is.Email.Error(MsgInvalidEmail),
		),
		validation.Field(&f.Password,
			validation.Required.Error(MsgMissingFields),
		),
	)
}

// Cause classifies a failed submission.
type Cause string

const (
	CauseInvalidInput   Cause = "invalid_input"
	CauseBadCredentials Cause = "bad_credentials"
	CauseNetwork        Cause = "network"
	CauseProvider       Cause = "provider"
)

// Failure is a classified submission error shown inline on the form.
type Failure struct {
	Cause   Cause
	Message string
}

// Authenticator is the subset of the session store the form submits to.
type Authenticator interface {
	SignIn(ctx context.Context, email, secret string) error
	SignUp(ctx context.Context, email, secret string) error
	SignInFederated(ctx context.Context, cred auth.FederatedCredential) error
}

var _ Authenticator = (*session.Store)(nil)

// Flow submits forms and records sign-in telemetry.
type Flow struct {
	logger  *slog.Logger
	metrics *telemetry.AuthMetrics
}

// New creates a Flow. metrics may be nil.
func New(logger *slog.Logger, metrics *telemetry.AuthMetrics) *Flow {
	return &Flow{logger: logging.OrDiscard(logger), metrics: metrics}
}

// Submit validates form and passes it to authn. It does not retry and does
// not wait for the session to change.
func (f *Flow) Submit(ctx context.Context, authn Authenticator, form Form) error {
	form.Email = strings.TrimSpace(form.Email)
	if err := form.Validate(); err != nil {
		return err
	}

	var err error
	switch form.Mode {
	case ModeSignUp:
		err = authn.SignUp(ctx, form.Email, form.Password)
	default:
		err = authn.SignIn(ctx, form.Email, form.Password)
	}
	f.record(ctx, form.Mode, err)
	return err
}

// SubmitFederated exchanges a federated credential for a session.
func (f *Flow) SubmitFederated(ctx context.Context, authn Authenticator, cred auth.FederatedCredential) error {
	err := authn.SignInFederated(ctx, cred)
	f.record(ctx, ModeFederated, err)
	return err
}

func (f *Flow) record(ctx context.Context, mode Mode, err error) {
	var cause string
	if failure := Classify(err, mode); failure != nil {
		cause = string(failure.Cause)
		logging.Error(ctx, f.logger, "sign-in failed", err, "mode", mode, "cause", cause)
	}
	if f.metrics != nil {
		f.metrics.RecordSignIn(ctx, string(mode), cause)
	}
}

// Classify maps a submission error to the message shown for mode. It
// returns nil for a nil error.
func Classify(err error, mode Mode) *Failure {
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		msg := MsgMissingFields
		for _, field := range []string{"Email", "Password"} {
			if fe, ok := verrs[field]; ok && fe != nil {
				msg = fe.Error()
				break
			}
		}
		return &Failure{Cause: CauseInvalidInput, Message: msg}
	}

	if auth.IsUnavailable(err) {
		return &Failure{Cause: CauseNetwork, Message: MsgNetwork}
	}

	cause := CauseProvider
	switch auth.ErrorCode(err) {
	case auth.CodeInvalidCredentials, auth.CodeEmailExists, auth.CodeWeakPassword, auth.CodeFederatedFailed:
		cause = CauseBadCredentials
	}

	switch mode {
	case ModeSignUp:
		return &Failure{Cause: cause, Message: MsgSignUpFailed}
	case ModeFederated:
		return &Failure{Cause: cause, Message: MsgFederatedFailed}
	default:
		return &Failure{Cause: cause, Message: MsgSignInFailed}
	}
}

// View is the render output of the login page.
type View struct {
	// Redirect is set when the page must navigate instead of rendering
	Redirect string
	Mode     Mode
	Email    string
	Error    string
	// Checking is true while the initial session is still unknown
	Checking bool
}

// Render computes the login page for the latest snapshot. A signed-in
// snapshot always redirects to the intent, or home when there is none.
func Render(state session.State, intent string, form Form, failure *Failure) View {
	if state.Resolved && state.Principal != nil {
		return View{Redirect: Destination(intent)}
	}

	mode := form.Mode
	if mode == "" {
		mode = ModeSignIn
	}
	view := View{Mode: mode, Email: form.Email, Checking: !state.Resolved}
	if failure != nil {
		view.Error = failure.Message
	}
	return view
}

// Destination returns where a successful sign-in lands for intent.
func Destination(intent string) string {
	if !auth.IsLocalPath(intent) || intent == "/login" || strings.HasPrefix(intent, "/login?") {
		return "/"
	}
	return intent
}
