package serp

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorTaxonomyDistinguishable(t *testing.T) {
	var err error = fmt.Errorf("search failed: %w", &AuthError{Vendor: "serpapi", Message: "bad key"})

	var authErr *AuthError
	var rateErr *RateLimitError
	if !errors.As(err, &authErr) {
		t.Errorf("expected wrapped AuthError to be matchable")
	}
	if errors.As(err, &rateErr) {
		t.Errorf("AuthError must not match RateLimitError")
	}
}

func TestNetworkErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &NetworkError{Vendor: "searchapi", Err: cause}

	if !errors.Is(err, cause) {
		t.Errorf("expected NetworkError to unwrap to its cause")
	}
}
