// Package adapters assembles the shipped source adapters over the shared
// HTTP fetcher and headless renderer.
package adapters

import (
	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/adapters/federalregister"
	"github.com/scottlangford2/research-scraper/internal/adapters/grantsgov"
	"github.com/scottlangford2/research-scraper/internal/adapters/portal"
	"github.com/scottlangford2/research-scraper/internal/adapters/samgov"
	"github.com/scottlangford2/research-scraper/internal/adapters/socrata"
	collyfetcher "github.com/scottlangford2/research-scraper/internal/fetcher/colly"
	"github.com/scottlangford2/research-scraper/internal/fetcher/headless"
	"github.com/scottlangford2/research-scraper/internal/policy/robots"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// Settings carries the per-adapter knobs exposed through configuration.
type Settings struct {
	SAMGov          samgov.Config
	GrantsGov       grantsgov.Config
	FederalRegister federalregister.Config
	Socrata         socrata.Config
	Portal          portal.Config
}

// Deps are the shared transports and ambient services.
type Deps struct {
	HTTP    *collyfetcher.Fetcher
	Browser headless.Renderer
	Robots  robots.Checker
	Clock   rfp.Clock
	Logger  *zap.Logger
}

// Build returns every shipped adapter. Browser adapters are omitted when
// no renderer is configured.
func Build(s Settings, deps Deps) []rfp.Adapter {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s.SAMGov.Clock, s.SAMGov.Logger = deps.Clock, logger
	s.GrantsGov.Logger = logger
	s.FederalRegister.Clock, s.FederalRegister.Logger = deps.Clock, logger
	s.Socrata.Clock, s.Socrata.Logger = deps.Clock, logger
	s.Portal.Logger = logger
	if s.Portal.Robots == nil {
		s.Portal.Robots = deps.Robots
	}

	out := []rfp.Adapter{
		samgov.New(deps.HTTP, s.SAMGov),
		grantsgov.New(deps.HTTP, s.GrantsGov),
		federalregister.New(deps.HTTP, s.FederalRegister),
		socrata.New(deps.HTTP, s.Socrata),
	}
	if deps.Browser != nil {
		out = append(out, portal.New(deps.Browser, s.Portal))
	}
	return out
}

// Missing lists the requested sources that have no adapter in built.
// An empty request means every known source.
func Missing(requested []rfp.Source, built []rfp.Adapter) []rfp.Source {
	have := make(map[rfp.Source]bool, len(built))
	for _, a := range built {
		have[a.Source()] = true
	}
	if len(requested) == 0 {
		for _, info := range rfp.Sources() {
			requested = append(requested, info.Source)
		}
	}
	var missing []rfp.Source
	for _, s := range requested {
		if !have[s] {
			missing = append(missing, s)
		}
	}
	return missing
}
