package fetch

import (
	"net/url"
	"strings"
)

// Platform is a documentation or hosting site with a known page layout.
type Platform string

const (
	// PlatformGitHub is a github.com repository page
	PlatformGitHub Platform = "github"
	// PlatformReadTheDocs is a Read the Docs / Sphinx site
	PlatformReadTheDocs Platform = "readthedocs"
	// PlatformGitBook is a GitBook site
	PlatformGitBook Platform = "gitbook"
	// PlatformNPM is an npmjs.com package page
	PlatformNPM Platform = "npm"
	// PlatformPkgGoDev is a pkg.go.dev module page
	PlatformPkgGoDev Platform = "pkggodev"
	// PlatformUnknown is an unrecognized site
	PlatformUnknown Platform = "unknown"
)

// DetectPlatform identifies the hosting platform from a URL.
func DetectPlatform(urlStr string) Platform {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PlatformUnknown
	}

	host := strings.ToLower(parsed.Hostname())

	switch {
	case host == "github.com" || host == "www.github.com":
		return PlatformGitHub
	case strings.HasSuffix(host, ".readthedocs.io") || strings.HasSuffix(host, ".readthedocs.org"):
		return PlatformReadTheDocs
	case strings.HasSuffix(host, ".gitbook.io"):
		return PlatformGitBook
	case host == "www.npmjs.com" || host == "npmjs.com":
		return PlatformNPM
	case host == "pkg.go.dev":
		return PlatformPkgGoDev
	}

	return PlatformUnknown
}

// PlatformContentSelectors returns content selectors optimized for a specific platform.
func PlatformContentSelectors(platform Platform) []string {
	switch platform {
	case PlatformGitHub:
		return []string{
			"article.markdown-body",
			"#readme",
			".repository-content",
		}
	case PlatformReadTheDocs:
		return []string{
			"[role='main']",
			".rst-content",
			".document",
		}
	case PlatformGitBook:
		return []string{
			"main",
			"[data-testid='page.contentEditor']",
		}
	case PlatformNPM:
		return []string{
			"#readme",
			"main",
		}
	case PlatformPkgGoDev:
		return []string{
			".UnitReadme",
			".Documentation",
			"main",
		}
	default:
		return DefaultTextSelectors()
	}
}

// PlatformNoiseSelectors returns selectors for site chrome that should be stripped.
func PlatformNoiseSelectors(platform Platform) []string {
	switch platform {
	case PlatformGitHub:
		return []string{".file-navigation", ".BorderGrid", ".js-repo-nav"}
	case PlatformReadTheDocs:
		return []string{".wy-nav-side", ".rst-versions", ".headerlink"}
	case PlatformPkgGoDev:
		return []string{".UnitDirectories", ".UnitFiles"}
	default:
		return nil
	}
}
