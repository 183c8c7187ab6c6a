package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/darkangelpraha/dropindex/internal/embedder"
	"github.com/darkangelpraha/dropindex/internal/indexer"
	"github.com/darkangelpraha/dropindex/internal/logger"
	"github.com/darkangelpraha/dropindex/internal/searcher"
	"github.com/darkangelpraha/dropindex/internal/storage"
	"github.com/darkangelpraha/dropindex/internal/vectorstore"
)

// closers releases opened resources in reverse order
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stack holds the components an index, search or MCP session needs
type stack struct {
	store    *storage.SQLiteStore
	snippets *storage.SnippetStore
	vectors  *vectorstore.Client
	embed    *embedder.Service
	audit    *logger.Logger

	closers closers
}

func (s *stack) Close() error {
	return s.closers.Close()
}

func (a *app) openStore() (*storage.SQLiteStore, error) {
	store, err := storage.NewSQLiteStore(a.cfg.StateDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open state db %s: %w", a.cfg.StateDB, err)
	}
	return store, nil
}

// openSnippets returns nil when the snippet store is disabled
func (a *app) openSnippets() (*storage.SnippetStore, error) {
	if a.cfg.SnippetsDB == "" {
		return nil, nil
	}
	snippets, err := storage.NewSnippetStore(a.cfg.SnippetsDB, a.cfg.SnippetMaxChars)
	if err != nil {
		return nil, fmt.Errorf("failed to open snippets db %s: %w", a.cfg.SnippetsDB, err)
	}
	return snippets, nil
}

// buildStack opens every store and client. withEmbedder=false skips the
// provider, which fulltext-only search does not need.
func (a *app) buildStack(withEmbedder bool) (*stack, error) {
	s := &stack{}
	fail := func(err error) (*stack, error) {
		_ = s.Close()
		return nil, err
	}

	store, err := a.openStore()
	if err != nil {
		return fail(err)
	}
	s.store = store
	s.closers.add(store.Close)

	snippets, err := a.openSnippets()
	if err != nil {
		return fail(err)
	}
	if snippets != nil {
		s.snippets = snippets
		s.closers.add(snippets.Close)
	}

	s.vectors = vectorstore.New(a.cfg, a.log)

	if withEmbedder {
		emb, err := embedder.New(a.cfg, a.log)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize embedder: %w", err))
		}
		s.embed = emb
		s.closers.add(emb.Close)
	}

	if a.cfg.AuditPath != "" {
		audit, err := logger.NewAudit(a.cfg.AuditPath)
		if err != nil {
			return fail(err)
		}
		s.audit = audit
		s.closers.add(func() error {
			audit.Sync()
			return nil
		})
	}
	return s, nil
}

func (a *app) newIndexer(s *stack) *indexer.Indexer {
	opts := []indexer.Option{indexer.WithLogger(a.log)}
	if s.snippets != nil {
		opts = append(opts, indexer.WithSnippets(s.snippets))
	}
	if s.audit != nil {
		opts = append(opts, indexer.WithAudit(s.audit))
	}
	return indexer.New(a.cfg, s.store, s.vectors, s.embed, opts...)
}

func (a *app) newSearcher(s *stack) *searcher.Searcher {
	// a nil *SnippetStore must not become a non-nil interface
	var text searcher.TextSearcher
	if s.snippets != nil {
		text = s.snippets
	}
	var emb searcher.QueryEmbedder
	if s.embed != nil {
		emb = s.embed
	}
	return searcher.NewSearcher(s.vectors, text, emb)
}

// requireStateDB fails when the state database has never been created
func (a *app) requireStateDB() error {
	if _, err := os.Stat(a.cfg.StateDB); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("state db not found: %s", a.cfg.StateDB)
		}
		return err
	}
	return nil
}
