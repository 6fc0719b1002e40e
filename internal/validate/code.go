package validate

import "regexp"

// Verification-code extraction is a heuristic: a 4-8 digit run near a code
// keyword wins, then a digit run followed by a keyword, then a bare digit
// run as a last resort. Patterns are tried in order; first match wins.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:验证码|校验码|动态码|动态密码|verification code|code|otp|pin)\D{0,8}?(\d{4,8})`),
	regexp.MustCompile(`(?i)(\d{4,8})\D{0,8}?(?:验证码|校验码|is your|verification)`),
	regexp.MustCompile(`(?:^|\D)(\d{4,8})(?:\D|$)`),
}

// ExtractCode pulls a verification code out of message content.
// Returns "" when nothing plausible is found.
func ExtractCode(content string) string {
	if content == "" {
		return ""
	}
	for _, re := range codePatterns {
		if m := re.FindStringSubmatch(content); len(m) > 1 && m[1] != "" {
			return m[1]
		}
	}
	return ""
}
