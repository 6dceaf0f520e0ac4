package identifier

import (
	"context"

	"github.com/ernestzhang-11/StreamForge/internal/failure"
)

// Identity is a normalized reference to one piece of content.
type Identity struct {
	Target Target
	ID     string
	Token  string
	URL    string
}

// ShortLinkResolver is satisfied by *Resolver.
type ShortLinkResolver interface {
	ResolveShortLink(ctx context.Context, shortURL string) (string, error)
}

type Normalizer struct {
	resolver ShortLinkResolver
}

func NewNormalizer(resolver ShortLinkResolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// Normalize turns share text or any known link shape into an Identity.
// Notes need both id and token; authors and goods only need the id. Either
// the whole Identity is returned or an error, never a partial result.
func (n *Normalizer) Normalize(ctx context.Context, target Target, text string) (Identity, error) {
	const op = "normalize"

	link := ExtractURL(text)
	if link == "" {
		return Identity{}, failure.Errorf(failure.NoIdentifierFound, op, "no url in input")
	}

	if IsShortLink(link) {
		if n.resolver == nil {
			return Identity{}, failure.Errorf(failure.ShortLinkResolutionFailed, op, "no resolver for %s", link)
		}
		resolved, err := n.resolver.ResolveShortLink(ctx, link)
		if err != nil {
			return Identity{}, err
		}
		link = resolved
	}

	if IsLoginRedirect(link) {
		if inner, ok := ResolveLoginRedirect(link); ok {
			link = inner
		}
	}

	id := ExtractID(target, link)
	if id == "" {
		return Identity{}, failure.Errorf(failure.NoIdentifierFound, op, "no %s id in %s", target, link)
	}

	token := Token(link)
	if target == Note && token == "" {
		return Identity{}, failure.Errorf(failure.NoIdentifierFound, op, "no xsec_token in %s", link)
	}

	return Identity{
		Target: target,
		ID:     id,
		Token:  token,
		URL:    CanonicalURL(target, id, token),
	}, nil
}
