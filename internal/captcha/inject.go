package captcha

import (
	"context"
	"fmt"

	"github.com/propscout/propscout/pkg/models"
)

// recaptchaInjectScript fills the hidden response textarea and overrides
// the client-side response accessor so in-page callbacks observe the
// solved token.
const recaptchaInjectScript = `((token) => {
	const textarea = document.querySelector('textarea[name="g-recaptcha-response"]');
	if (textarea) {
		textarea.value = token;
		textarea.style.display = 'block';
	}
	if (window.grecaptcha && window.grecaptcha.getResponse) {
		window.grecaptcha.getResponse = () => token;
	}
	return true;
})(%q)`

// hcaptchaInjectScript fills hCaptcha's hidden response field.
const hcaptchaInjectScript = `((token) => {
	const textarea = document.querySelector('textarea[name="h-captcha-response"]');
	if (textarea) {
		textarea.value = token;
		textarea.style.display = 'block';
	}
	return true;
})(%q)`

// inject places the solution token into the provider-appropriate hidden
// response field on the page.
func (o *Orchestrator) inject(ctx context.Context, page Page, challenge models.ChallengeType, token string) error {
	var script string
	switch challenge {
	case models.ChallengeRecaptchaV2, models.ChallengeRecaptchaV3:
		script = fmt.Sprintf(recaptchaInjectScript, token)
	case models.ChallengeHCaptcha:
		script = fmt.Sprintf(hcaptchaInjectScript, token)
	default:
		// Generic challenges have no known response field to fill.
		return nil
	}

	var ok bool
	if err := page.Eval(ctx, script, &ok); err != nil {
		return fmt.Errorf("token injection failed: %w", err)
	}
	return nil
}
