package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fablekit/fable/internal/blobstore"
	"github.com/fablekit/fable/internal/providers"
	"github.com/fablekit/fable/internal/types"
)

// GenerateImages renders the cover and every page illustration for a book.
// The cover is generated first and its failure aborts the stage. Page
// failures are tolerated: successful pages are persisted and the failed
// page numbers returned.
func (o *Orchestrator) GenerateImages(ctx context.Context, bookID string) (int, []int, error) {
	book, err := o.repo.Get(ctx, bookID)
	if err != nil {
		return 0, nil, err
	}
	if len(book.Pages) == 0 {
		return 0, nil, fmt.Errorf("book %s has no pages", bookID)
	}

	if _, err := o.repo.Update(ctx, bookID, func(b *types.Book) error {
		b.Status = types.StatusGeneratingImages
		return nil
	}); err != nil {
		return 0, nil, err
	}

	log := slog.With("book_id", bookID)
	log.Info("generating images", "pages", len(book.Pages))

	coverURL, coverPath, err := o.generateCover(ctx, book)
	if err != nil {
		return 0, nil, fmt.Errorf("cover generation failed: %w", err)
	}

	type pageResult struct {
		url, path string
	}
	var (
		mu      sync.Mutex
		results = make(map[int]pageResult)
		failed  []int
	)

	pages := book.Pages
	for start := 0; start < len(pages); start += o.maxConcurrency {
		end := start + o.maxConcurrency
		if end > len(pages) {
			end = len(pages)
		}
		chunk := pages[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, page := range chunk {
			page := page
			g.Go(func() error {
				url, path, err := o.generatePageImage(gctx, book.BookID, page)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					log.Warn("page image failed", "page", page.PageNumber, "error", err)
					failed = append(failed, page.PageNumber)
					return nil // One bad page must not cancel its siblings.
				}
				results[page.PageNumber] = pageResult{url: url, path: path}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, nil, err
		}

		if end < len(pages) {
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(o.interChunkDelay):
			}
		}
	}
	sort.Ints(failed)

	if _, err := o.repo.Update(ctx, bookID, func(b *types.Book) error {
		b.CoverImageURL = coverURL
		b.CoverImageStoragePath = coverPath
		for i := range b.Pages {
			if res, ok := results[b.Pages[i].PageNumber]; ok {
				b.Pages[i].ImageURL = res.url
				b.Pages[i].ImageStoragePath = res.path
			}
		}
		return nil
	}); err != nil {
		return 0, nil, err
	}

	log.Info("image generation complete", "succeeded", len(results), "failed", len(failed))
	return len(results) + 1, failed, nil
}

func (o *Orchestrator) generateCover(ctx context.Context, book *types.Book) (string, string, error) {
	prompt := providers.CoverPrompt(book.Title, book.Synopsis, book.Theme)

	var img *providers.ImageResult
	err := o.imagePolicy.Do(ctx, "generate_cover", func(ctx context.Context) error {
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		var genErr error
		img, genErr = o.gen.Image.GenerateImage(ctx, &providers.ImageRequest{
			Prompt:      prompt,
			AspectRatio: providers.AspectCover,
		})
		return genErr
	})
	if err != nil {
		return "", "", err
	}

	path := blobstore.CoverImagePath(book.BookID)
	url, err := o.artifacts.Put(ctx, path, img.Data, img.MimeType)
	if err != nil {
		return "", "", fmt.Errorf("failed to store cover: %w", err)
	}
	return url, path, nil
}

func (o *Orchestrator) generatePageImage(ctx context.Context, bookID string, page types.BookPage) (string, string, error) {
	var img *providers.ImageResult
	err := o.imagePolicy.Do(ctx, "generate_page_image", func(ctx context.Context) error {
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		var genErr error
		img, genErr = o.gen.Image.GenerateImage(ctx, &providers.ImageRequest{
			Prompt:      page.ImagePrompt,
			AspectRatio: providers.AspectPage,
		})
		return genErr
	})
	if err != nil {
		return "", "", err
	}

	path := blobstore.PageImagePath(bookID, page.PageNumber)
	url, err := o.artifacts.Put(ctx, path, img.Data, img.MimeType)
	if err != nil {
		return "", "", fmt.Errorf("failed to store page %d image: %w", page.PageNumber, err)
	}
	return url, path, nil
}

// RetryFailedImages regenerates only the pages that have no stored image.
func (o *Orchestrator) RetryFailedImages(ctx context.Context, bookID string) (int, []int, error) {
	book, err := o.repo.Get(ctx, bookID)
	if err != nil {
		return 0, nil, err
	}

	var missing []types.BookPage
	for _, p := range book.Pages {
		if p.ImageURL == "" {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return 0, nil, nil
	}

	type pageResult struct {
		url, path string
	}
	results := make(map[int]pageResult)
	var failed []int
	for _, page := range missing {
		url, path, err := o.generatePageImage(ctx, bookID, page)
		if err != nil {
			failed = append(failed, page.PageNumber)
			continue
		}
		results[page.PageNumber] = pageResult{url: url, path: path}
	}

	if len(results) > 0 {
		if _, err := o.repo.Update(ctx, bookID, func(b *types.Book) error {
			for i := range b.Pages {
				if res, ok := results[b.Pages[i].PageNumber]; ok {
					b.Pages[i].ImageURL = res.url
					b.Pages[i].ImageStoragePath = res.path
				}
			}
			return nil
		}); err != nil {
			return 0, nil, err
		}
	}
	return len(results), failed, nil
}
