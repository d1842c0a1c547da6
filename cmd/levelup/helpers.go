package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"levelup/internal/cache"
	"levelup/internal/compiler"
	"levelup/internal/config"
	"levelup/internal/engine"
	"levelup/internal/logging"
	"levelup/internal/mod"
	"levelup/internal/queue"
	"levelup/internal/refactor"
	"levelup/internal/repository"
	"levelup/internal/symbols"
	"levelup/internal/validator"
)

func newLogger(format, level string) *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.Format(format),
		Level:  logging.LogLevel(level),
	})
}

func mustGetWorkspaceRoot() string {
	root := workspaceFlag
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error resolving workspace root: %v\n", err)
		os.Exit(1)
	}
	return abs
}

var (
	stackOnce   sync.Once
	sharedStack *stack
	stackErr    error
)

// stack is every long-lived dependency a command might need: the engine
// itself plus the catalogue, cache, and queue built around it.
type stack struct {
	workspaceRoot string
	cfg           *config.Config
	repos         *repository.Store
	cache         *cache.DB
	asmCache      *cache.AssemblyCache
	engine        *engine.Engine
	queue         *queue.Queue
	logger        *logging.Logger
}

func getStack(workspaceRoot string, logger *logging.Logger) (*stack, error) {
	stackOnce.Do(func() {
		cfg, err := config.LoadConfig(workspaceRoot)
		if err != nil {
			stackErr = fmt.Errorf("failed to load config: %w", err)
			return
		}

		repos := repository.NewStore(workspaceRoot)
		if err := repos.Load(); err != nil {
			stackErr = fmt.Errorf("failed to load repository catalogue: %w", err)
			return
		}

		db, err := cache.Open(workspaceRoot, logger)
		if err != nil {
			stackErr = fmt.Errorf("failed to open assembly cache: %w", err)
			return
		}
		asmCache, err := cache.NewAssemblyCache(db)
		if err != nil {
			stackErr = fmt.Errorf("failed to build assembly cache: %w", err)
			return
		}

		manifest, err := config.LoadCompilerManifest(filepath.Join(workspaceRoot, "compilers.toml"))
		if err != nil {
			stackErr = fmt.Errorf("failed to load compiler manifest: %w", err)
			return
		}

		variants := []compiler.Variant{
			compiler.NewClang(cfg.Compilers.ClangPath, logger),
			compiler.NewMSVC(cfg.Compilers.MSVCPath, logger),
		}
		for _, v := range manifest.Variants {
			variants = append(variants, compiler.NewGenericVariant(v.ID, v.Path, v.Flags, logger))
		}
		compilers := compiler.NewRegistry(variants...)
		validators := validator.NewRegistry(validator.O0{}, validator.O3{})
		refactorings := refactor.NewRegistry(
			refactor.NewAddFunctionQualifier(),
			refactor.NewRemoveFunctionQualifier(),
		)
		mods := mod.NewRegistry(mod.RemoveInline{}, mod.AddOverride{})
		extractor := symbols.NewExtractor(cfg.Compilers.DoxygenPath, logger)

		e := engine.NewEngine(compilers, validators, refactorings, mods, extractor, asmCache, logger)
		q := queue.New(e, logger, 100)

		sharedStack = &stack{
			workspaceRoot: workspaceRoot,
			cfg:           cfg,
			repos:         repos,
			cache:         db,
			asmCache:      asmCache,
			engine:        e,
			queue:         q,
			logger:        logger,
		}
	})
	return sharedStack, stackErr
}

func mustGetStack(workspaceRoot string, logger *logging.Logger) *stack {
	s, err := getStack(workspaceRoot, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing engine: %v\n", err)
		os.Exit(1)
	}
	return s
}
