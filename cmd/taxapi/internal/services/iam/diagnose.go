package iam

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/auth"
)

// Decode methods reported by the Diagnoser.
const (
	DecodeEncrypted  = "encrypted"  // framework token decrypted with the session secret
	DecodeSigned     = "signed"     // HS256 token verified with the session secret
	DecodeUnverified = "unverified" // payload read without any verification
)

// DiagnosticReport describes what a session cookie contains. It is support
// output only: fields from an unverified decode are attacker controlled.
type DiagnosticReport struct {
	Source     CredentialSource `json:"source"`
	CookieName string           `json:"cookie_name,omitempty"`
	Found      bool             `json:"found"`
	Verified   bool             `json:"verified"`
	Method     string           `json:"method,omitempty"`
	Subject    string           `json:"subject,omitempty"`
	Role       string           `json:"role,omitempty"`
	Region     string           `json:"region,omitempty"`
	Email      string           `json:"email,omitempty"`
	Errors     []string         `json:"errors,omitempty"`
}

type diagnosticClaims struct {
	Subject string `mapstructure:"sub"`
	UserID  string `mapstructure:"userId"`
	Role    string `mapstructure:"role"`
	Region  string `mapstructure:"region"`
	Email   string `mapstructure:"email"`
}

// Diagnoser decodes session cookies for troubleshooting. It is never part of the
// authenticator chain.
type Diagnoser struct {
	framework     FrameworkTokenVerifier
	sessionSecret []byte
}

// NewDiagnoser creates a diagnoser using the session secret for verification attempts.
func NewDiagnoser(framework FrameworkTokenVerifier, sessionSecret string) *Diagnoser {
	return &Diagnoser{framework: framework, sessionSecret: []byte(sessionSecret)}
}

// Diagnose inspects the secure session cookie, then the plain one, and reports on
// the first present. Verification is attempted first; the unverified decode runs
// only when verification fails.
func (d *Diagnoser) Diagnose(req AuthRequest) *DiagnosticReport {
	report := &DiagnosticReport{Source: SourceDiagnostic}

	var token string
	for _, name := range auth.SessionCookieNames() {
		if v := req.Cookie(name); v != "" {
			report.CookieName, token = name, v
			break
		}
	}
	if token == "" {
		return report
	}
	report.Found = true

	if d.framework != nil {
		claims, err := d.framework.Decode(token)
		if err == nil {
			report.Verified = true
			report.Method = DecodeEncrypted
			report.Subject = claims.Subject
			report.Role = claims.Role
			report.Email = claims.Email
			return report
		}
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", DecodeEncrypted, err))
	}

	claims, err := d.verifySigned(token)
	if err == nil {
		report.Verified = true
		report.Method = DecodeSigned
		report.fill(claims)
		return report
	}
	report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", DecodeSigned, err))

	claims, err = decodeUnverified(token)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", DecodeUnverified, err))
		return report
	}
	report.Method = DecodeUnverified
	report.fill(claims)
	return report
}

func (d *Diagnoser) verifySigned(token string) (*diagnosticClaims, error) {
	mc := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, mc, func(*jwt.Token) (any, error) {
		return d.sessionSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return toDiagnosticClaims(mc)
}

func decodeUnverified(token string) (*diagnosticClaims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, err
	}
	return toDiagnosticClaims(mc)
}

func toDiagnosticClaims(mc jwt.MapClaims) (*diagnosticClaims, error) {
	var c diagnosticClaims
	if err := auth.DecodeClaims(mc, &c); err != nil {
		return nil, err
	}
	if c.Subject == "" && c.UserID == "" {
		return nil, errors.New("no subject claim")
	}
	return &c, nil
}

func (r *DiagnosticReport) fill(c *diagnosticClaims) {
	r.Subject = c.Subject
	if r.Subject == "" {
		r.Subject = c.UserID
	}
	r.Role = c.Role
	r.Region = c.Region
	r.Email = c.Email
}
