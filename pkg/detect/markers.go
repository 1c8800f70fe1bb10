package detect

// BlockSignature defines detection patterns for one anti-bot vendor or
// challenge flow.
type BlockSignature struct {
	Vendor       string   // short vendor/flow label, reported as the matched marker
	Titles       []string // <title> substrings (lowercase)
	BodyPatterns []string // raw body substrings (lowercase)
}

// blockSignatures is the fixed set of anti-bot/CAPTCHA markers the detector
// scans for. Patterns are matched case-insensitively against the whole body;
// titles are additionally matched against the parsed <title> element so a
// short challenge page is caught even when the body text is obfuscated.
var blockSignatures = []BlockSignature{
	{
		Vendor:       "cloudflare_challenge",
		Titles:       []string{"just a moment...", "attention required!"},
		BodyPatterns: []string{"cf-browser-verification", "cf_chl_opt", "checking your browser before accessing", "/cdn-cgi/challenge-platform/"},
	},
	{
		Vendor:       "perimeterx",
		Titles:       []string{"access to this page has been denied"},
		BodyPatterns: []string{"_pxappid", "px-captcha", "please verify you are a human"},
	},
	{
		Vendor:       "datadome",
		BodyPatterns: []string{"datadome", "geo.captcha-delivery.com"},
	},
	{
		Vendor:       "akamai_bot_manager",
		BodyPatterns: []string{"ak-challenge", "_abck", "reference #18."},
	},
	{
		Vendor:       "generic_captcha",
		Titles:       []string{"captcha"},
		BodyPatterns: []string{"g-recaptcha", "h-captcha", "solve the captcha", "are you a robot"},
	},
	{
		Vendor:       "generic_interstitial",
		Titles:       []string{"pardon our interruption"},
		BodyPatterns: []string{"pardon our interruption", "request unsuccessful. incapsula", "verify you are a human"},
	},
}
