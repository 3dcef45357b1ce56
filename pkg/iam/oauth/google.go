package oauth

import (
	"context"

	"github.com/Abraxas-365/keybridge/pkg/config"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleAPIBase = "https://www.googleapis.com"

type GoogleProvider struct {
	base
}

func NewGoogleProvider(cfg config.OAuthProviderConfig, opts ...Option) *GoogleProvider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	p := &GoogleProvider{base: base{
		conf: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
		apiBase: googleAPIBase,
	}}
	for _, opt := range opts {
		opt(&p.base)
	}
	return p
}

func (p *GoogleProvider) Name() iam.SSOProvider { return iam.SSOProviderGoogle }

type googleUserInfo struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

func (p *GoogleProvider) ResolveProfile(ctx context.Context, code string) (*Profile, error) {
	hc, err := p.client(ctx, code)
	if err != nil {
		return nil, err
	}

	var info googleUserInfo
	if err := getJSON(ctx, hc, p.apiBase+"/oauth2/v2/userinfo", &info); err != nil {
		return nil, err
	}
	return &Profile{
		Provider:  iam.SSOProviderGoogle,
		Subject:   info.ID,
		Email:     info.Email,
		FirstName: info.GivenName,
		LastName:  info.FamilyName,
	}, nil
}
