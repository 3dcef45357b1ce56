package oauth

import (
	"context"
	"strconv"
	"strings"

	"github.com/Abraxas-365/keybridge/pkg/config"
	"github.com/Abraxas-365/keybridge/pkg/iam"
	"github.com/Abraxas-365/keybridge/pkg/logx"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIBase = "https://api.github.com"

type GitHubProvider struct {
	base
}

func NewGitHubProvider(cfg config.OAuthProviderConfig, opts ...Option) *GitHubProvider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	p := &GitHubProvider{base: base{
		conf: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     github.Endpoint,
		},
		apiBase: githubAPIBase,
	}}
	for _, opt := range opts {
		opt(&p.base)
	}
	return p
}

func (p *GitHubProvider) Name() iam.SSOProvider { return iam.SSOProviderGitHub }

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ResolveProfile reads /user, falling back to the primary verified address
// from /user/emails when the public email is hidden.
func (p *GitHubProvider) ResolveProfile(ctx context.Context, code string) (*Profile, error) {
	hc, err := p.client(ctx, code)
	if err != nil {
		return nil, err
	}

	var u githubUser
	if err := getJSON(ctx, hc, p.apiBase+"/user", &u); err != nil {
		return nil, err
	}

	email := u.Email
	if email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, hc, p.apiBase+"/user/emails", &emails); err != nil {
			logx.WithContext(ctx).WithError(err).WithField("login", u.Login).Debug("github: email list unavailable")
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}

	first, last, _ := strings.Cut(strings.TrimSpace(u.Name), " ")
	return &Profile{
		Provider:  iam.SSOProviderGitHub,
		Subject:   strconv.FormatInt(u.ID, 10),
		Email:     email,
		Login:     u.Login,
		FirstName: first,
		LastName:  strings.TrimSpace(last),
	}, nil
}
