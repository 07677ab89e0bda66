package identity

import "errors"

var (
	// ErrMissingClientID is returned when no OAuth client id is configured.
	ErrMissingClientID = errors.New("identity provider client id missing")
	// ErrUnavailable is returned when the SDK did not become ready within the poll bound.
	ErrUnavailable = errors.New("identity provider unavailable")
	// ErrNilProbe is returned when a Loader has no probe.
	ErrNilProbe = errors.New("identity provider probe is nil")
)

// InitOptions configures the SDK before rendering.
type InitOptions struct {
	ClientID           string
	Callback           func(credential string)
	AutoSelect         bool
	CancelOnTapOutside bool
	ITPSupport         bool
	UseFedCMForPrompt  bool
}

// ButtonOptions controls the rendered sign-in button.
type ButtonOptions struct {
	Theme         string
	Size          string
	Shape         string
	Text          string
	LogoAlignment string
	Width         string
}

// IdentitySignInProvider is the SDK surface the client shell needs.
type IdentitySignInProvider interface {
	Initialize(opts InitOptions) error
	RenderButton(target string, opts ButtonOptions) error
	DisableAutoSelect()
}

// Probe reports whether the SDK is ready and returns it when it is.
type Probe func() (IdentitySignInProvider, bool)

// SignInButton is the button used on the login page.
func SignInButton() ButtonOptions {
	return ButtonOptions{
		Theme:         "outline",
		Size:          "large",
		Shape:         "pill",
		Text:          "signin_with",
		LogoAlignment: "left",
		Width:         "100%",
	}
}

// SignUpButton is the button used on the signup page.
func SignUpButton() ButtonOptions {
	b := SignInButton()
	b.Text = "signup_with"
	return b
}
