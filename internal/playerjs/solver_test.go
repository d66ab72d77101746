package playerjs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

// toyPlayerJS mimics the shapes the parser looks for: a scramble helper
// object, a signature function using it, and an n transform guarded by the
// `.get("n")` check.
const toyPlayerJS = `
var Ak={xR:function(a){return a.reverse()},
dM:function(a,b){a.splice(0,b)},
q0:function(a,b){var c=a[0];a[0]=a[b%a.length];a[b%a.length]=c}};
var dec=function(a){a=a.split("");Ak.xR(a,3);Ak.dM(a,2);Ak.q0(a,1);return a.join("")};
nfx=function(a){return a.split("").reverse().join("")+"_dec"};
x.get("n"))&&(b=nfx(b)
`

func TestParseProgram_SignatureOps(t *testing.T) {
	p, err := parseProgram([]byte(toyPlayerJS))
	if err != nil {
		t.Fatalf("parseProgram() error = %v", err)
	}
	if len(p.sigOps) != 3 {
		t.Fatalf("parsed %d sig ops, want 3", len(p.sigOps))
	}

	// "abcdef" -> reverse "fedcba" -> splice(2) "dcba" -> swap(1) "cdba"
	got, err := p.decipherSignature("abcdef")
	if err != nil {
		t.Fatalf("decipherSignature() error = %v", err)
	}
	if got != "cdba" {
		t.Fatalf("decipherSignature() = %q, want %q", got, "cdba")
	}
}

func TestParseProgram_NTransform(t *testing.T) {
	p, err := parseProgram([]byte(toyPlayerJS))
	if err != nil {
		t.Fatalf("parseProgram() error = %v", err)
	}
	got, err := p.decodeN("xyz")
	if err != nil {
		t.Fatalf("decodeN() error = %v", err)
	}
	if got != "zyx_dec" {
		t.Fatalf("decodeN() = %q, want %q", got, "zyx_dec")
	}
}

func TestSolver_PlayerURLAndCache(t *testing.T) {
	jsFetches := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<script src="/s/player/abc123/base.js"></script>`))
	})
	mux.HandleFunc("/s/player/abc123/base.js", func(w http.ResponseWriter, r *http.Request) {
		jsFetches++
		w.Write([]byte(toyPlayerJS))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSolverWithBaseURL(srv.Client(), srv.URL)
	ctx := context.Background()

	playerURL, err := s.PlayerURL(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("PlayerURL() error = %v", err)
	}
	if playerURL != srv.URL+"/s/player/abc123/base.js" {
		t.Fatalf("PlayerURL() = %q", playerURL)
	}

	if _, err := s.DecodeN(ctx, playerURL, "abc"); err != nil {
		t.Fatalf("DecodeN() error = %v", err)
	}
	if _, err := s.DecodeSignature(ctx, playerURL, "abcdef"); err != nil {
		t.Fatalf("DecodeSignature() error = %v", err)
	}
	if jsFetches != 1 {
		t.Fatalf("player js fetched %d times, want 1 (cached)", jsFetches)
	}
}

func TestSolver_MissingPlayerURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>no player here</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewSolverWithBaseURL(srv.Client(), srv.URL)
	if _, err := s.PlayerURL(context.Background(), "dQw4w9WgXcQ"); err == nil {
		t.Fatal("PlayerURL() = nil error, want failure")
	}
}
