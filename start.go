package unpackr

/* Library construction: Config in, Unpackr out. Every collaborator has a
   working default so the zero config extracts with no passwords, no
   prompts and no console output. */

import (
	"os"
	"time"
)

// DefaultMaxDepth bounds how deep nested archives are followed.
const DefaultMaxDepth = 5

// DefaultTimeout bounds one extraction attempt unless configured.
const DefaultTimeout = 10 * time.Minute

// Config is the input data to configure this library for use.
type Config struct {
	// Backend runs extractions and listings. Nil selects the external
	// 7-Zip binary when one is on PATH, the embedded extractors otherwise.
	Backend Backend
	// Logger receives operational output. Nil discards it.
	Logger Logger
	// Reporter receives user-facing events. Nil discards them.
	Reporter Reporter
	// Prompter asks for passwords interactively. Nil never asks.
	Prompter Prompter
	// Passwords seed the registry, in order.
	Passwords []string
	// PasswordFile is an optional password store merged into the registry,
	// one password per line.
	PasswordFile string
	// CloakRules repair disguised archive names during classification.
	// Nil selects the built-in rules.
	CloakRules *CloakRuleSet
	// MaxDepth bounds nested extraction per branch. Zero selects
	// DefaultMaxDepth; negative disables recursion entirely.
	MaxDepth int
	// Timeout bounds each extraction attempt. Zero selects DefaultTimeout;
	// negative disables the per-attempt bound.
	Timeout time.Duration
	// KeepArchives disables cleanup of consumed archives.
	KeepArchives bool
	// PermanentDelete removes consumed archives instead of moving them to
	// the trash folder. Ignored when KeepArchives is set.
	PermanentDelete bool
	// Overwrite lets extraction replace existing files.
	Overwrite bool
	// RepairEncoding renames extracted files whose names decode from a
	// legacy codepage.
	RepairEncoding bool
	// Similarity tunes drop-folder grouping; zero selects
	// DefaultSimilarity.
	Similarity float64
	// FileMode and DirMode apply to extracted files and created folders.
	FileMode os.FileMode
	DirMode  os.FileMode
}

// Unpackr is what you get from New. It extracts archives recursively and
// processes whole drop folders.
type Unpackr struct {
	config     *Config
	registry   *PasswordRegistry
	trials     *TrialEngine
	grouper    *Grouper
	classifier *Classifier
	log        Logger
	reporter   Reporter
}

// New validates the config, fills the defaults and returns a ready
// Unpackr. The only hard failure is having no usable backend.
func New(config *Config) (*Unpackr, error) {
	if config == nil {
		config = &Config{}
	}

	if config.Logger == nil {
		config.Logger = NoLogger()
	}

	if config.Reporter == nil {
		config.Reporter = NopReporter()
	}

	if config.Prompter == nil {
		config.Prompter = NopPrompter()
	}

	if config.Backend == nil {
		config.Backend = defaultBackend(config.Logger)
	}

	if config.CloakRules == nil {
		config.CloakRules = DefaultCloakRules()
	}

	switch {
	case config.MaxDepth == 0:
		config.MaxDepth = DefaultMaxDepth
	case config.MaxDepth < 0:
		config.MaxDepth = 0
	}

	switch {
	case config.Timeout == 0:
		config.Timeout = DefaultTimeout
	case config.Timeout < 0:
		config.Timeout = 0
	}

	if config.FileMode == 0 {
		config.FileMode = DefaultFileMode
	}

	if config.DirMode == 0 {
		config.DirMode = DefaultDirMode
	}

	registry := NewPasswordRegistry()
	for _, password := range config.Passwords {
		registry.Add(password)
	}

	if config.PasswordFile != "" {
		if _, err := registry.LoadFile(config.PasswordFile); err != nil {
			return nil, err
		}
	}

	unpackr := &Unpackr{
		config:     config,
		registry:   registry,
		grouper:    NewGrouper(config.Similarity, config.Logger),
		classifier: NewClassifier(config.CloakRules, config.Logger),
		log:        config.Logger,
		reporter:   config.Reporter,
	}

	unpackr.trials = NewTrialEngine(TrialConfig{
		Backend:   config.Backend,
		Registry:  registry,
		Prompter:  config.Prompter,
		Reporter:  config.Reporter,
		Logger:    config.Logger,
		Timeout:   config.Timeout,
		Overwrite: config.Overwrite,
		FileMode:  config.FileMode,
		DirMode:   config.DirMode,
	})

	return unpackr, nil
}

// defaultBackend prefers the external 7-Zip binary and falls back to the
// in-process extractors when none is installed.
func defaultBackend(log Logger) Backend {
	if cli, err := NewSevenZipCLI("", log); err == nil {
		return cli
	}

	log.Debugf("No 7-Zip binary found, using the embedded extractors")

	return NewEmbedded(log)
}

// Registry exposes the password registry, so callers can persist newly
// learned passwords after a run.
func (u *Unpackr) Registry() *PasswordRegistry {
	return u.registry
}

// Backend returns the extraction backend in use.
func (u *Unpackr) Backend() Backend {
	return u.config.Backend
}
