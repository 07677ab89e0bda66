package sessionkit

import "strings"

// OpenResumeBuilder sends the user to the externally hosted Resume Builder with a
// full-page navigation. Nothing beyond the navigation is in scope.
func OpenResumeBuilder(nav Navigator, cfg NavigationConfig) error {
	target := strings.TrimSpace(cfg.ResumeBuilderURL)
	if target == "" {
		return ErrRedirectNotConfigured
	}
	if nav == nil {
		nav = noopNavigator{}
	}
	nav.Replace(target)
	return nil
}
