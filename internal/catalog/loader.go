package catalog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var errNoFrontMatter = errors.New("missing front matter")

// LoadDir loads masks and findings from a template root on disk.
func LoadDir(ctx context.Context, dir string) (*Catalog, error) {
	return Load(ctx, os.DirFS(dir))
}

// Load reads masks and findings from fsys concurrently.
func Load(ctx context.Context, fsys fs.FS) (*Catalog, error) {
	var c Catalog
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		masks, err := LoadMasks(ctx, fsys)
		c.Masks = masks
		return err
	})
	g.Go(func() error {
		findings, err := LoadFindings(ctx, fsys)
		c.Findings = findings
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(c.Masks) == 0 {
		return nil, ErrNoMasks
	}
	return &c, nil
}

// LoadMasks parses every *.md file directly under mascaras/, sorted by name.
func LoadMasks(ctx context.Context, fsys fs.FS) ([]Mask, error) {
	entries, err := fs.ReadDir(fsys, MasksDir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read masks: %w", err)
	}

	var masks []Mask
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || path.Ext(e.Name()) != ".md" {
			continue
		}
		var m Mask
		body, err := readDocument(fsys, path.Join(MasksDir, e.Name()), &m)
		if err != nil {
			return nil, err
		}
		m.File = e.Name()
		m.Body = body
		m.Contrast = strings.ToLower(strings.TrimSpace(m.Contrast))
		masks = append(masks, m)
	}
	slices.SortFunc(masks, func(a, b Mask) int { return strings.Compare(a.File, b.File) })
	return masks, nil
}

// LoadFindings parses every *.md file below achados/, at any depth. A
// finding without an explicit region inherits the name of its first-level
// folder. A missing achados/ folder yields no findings.
func LoadFindings(ctx context.Context, fsys fs.FS) ([]Finding, error) {
	var findings []Finding
	err := fs.WalkDir(fsys, FindingsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == FindingsDir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || path.Ext(p) != ".md" {
			return nil
		}

		var f Finding
		body, err := readDocument(fsys, p, &f)
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(p, FindingsDir+"/")
		f.File = rel
		f.Body = body
		if f.Region == "" {
			if dir, _, ok := strings.Cut(rel, "/"); ok {
				f.Region = dir
			}
		}
		findings = append(findings, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: load findings: %w", err)
	}
	slices.SortFunc(findings, func(a, b Finding) int { return strings.Compare(a.File, b.File) })
	return findings, nil
}

func readDocument(fsys fs.FS, p string, header any) (string, error) {
	f, err := fsys.Open(p)
	if err != nil {
		return "", fmt.Errorf("catalog: open %q: %w", p, err)
	}
	defer f.Close()

	body, err := ParseDocument(f, header)
	if err != nil {
		return "", fmt.Errorf("catalog: parse %q: %w", p, err)
	}
	return body, nil
}

// ParseDocument splits a front-matter document, decodes the header into out
// and returns the trimmed body. Unknown header keys are rejected.
func ParseDocument(r io.Reader, out any) (string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "---" {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", errNoFrontMatter
	}

	var (
		header bytes.Buffer
		body   strings.Builder
		inBody bool
	)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if !inBody {
			if strings.TrimSpace(line) == "---" {
				inBody = true
				continue
			}
			header.WriteString(line)
			header.WriteByte('\n')
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if !inBody {
		return "", fmt.Errorf("%w: header not terminated", errNoFrontMatter)
	}

	if header.Len() > 0 {
		dec := yaml.NewDecoder(&header)
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("decode front matter: %w", err)
		}
	}
	return strings.TrimSpace(body.String()), nil
}
