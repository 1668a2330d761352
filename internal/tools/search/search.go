// Package search implements the builtin reference lookup tool. It queries
// PubMed through the NCBI E-utilities JSON endpoints and renders a compact
// citation list the model can quote from.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eduardocaminha/reporter-sub000/internal/observe"
	"github.com/eduardocaminha/reporter-sub000/internal/tools"
	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

// ToolName is the name the model uses to request a lookup.
const ToolName = "buscar_referencia"

// DefaultBaseURL is the public E-utilities endpoint.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

const (
	defaultMaxResults = 5
	defaultTimeout    = 10 * time.Second
)

// Config configures a [Client]. Zero fields take defaults.
type Config struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Article is one search hit.
type Article struct {
	PMID    string
	Title   string
	Journal string
	Year    string
}

// Client talks to E-utilities.
type Client struct {
	cfg  Config
	http *http.Client
}

// New returns a Client. A nil httpClient uses one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Search runs esearch for query and resolves the hits with esummary.
func (c *Client) Search(ctx context.Context, query string) ([]Article, error) {
	ids, err := c.esearch(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return c.esummary(ctx, ids)
}

type esearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

func (c *Client) esearch(ctx context.Context, query string) ([]string, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", query)
	q.Set("retmode", "json")
	q.Set("retmax", strconv.Itoa(c.cfg.MaxResults))
	q.Set("sort", "relevance")

	var resp esearchResponse
	if err := c.get(ctx, "esearch.fcgi", q, &resp); err != nil {
		return nil, fmt.Errorf("search: esearch: %w", err)
	}
	return resp.Result.IDList, nil
}

type summaryDoc struct {
	Title           string `json:"title"`
	FullJournalName string `json:"fulljournalname"`
	Source          string `json:"source"`
	PubDate         string `json:"pubdate"`
}

func (c *Client) esummary(ctx context.Context, ids []string) ([]Article, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "json")

	var resp struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := c.get(ctx, "esummary.fcgi", q, &resp); err != nil {
		return nil, fmt.Errorf("search: esummary: %w", err)
	}

	var uids []string
	if raw, ok := resp.Result["uids"]; ok {
		if err := json.Unmarshal(raw, &uids); err != nil {
			return nil, fmt.Errorf("search: esummary: decode uids: %w", err)
		}
	} else {
		uids = ids
	}

	articles := make([]Article, 0, len(uids))
	for _, uid := range uids {
		raw, ok := resp.Result[uid]
		if !ok {
			continue
		}
		var doc summaryDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		title := strings.TrimSpace(doc.Title)
		if title == "" {
			continue
		}
		journal := doc.FullJournalName
		if journal == "" {
			journal = doc.Source
		}
		articles = append(articles, Article{
			PMID:    uid,
			Title:   title,
			Journal: strings.TrimSpace(journal),
			Year:    year(doc.PubDate),
		})
	}
	return articles, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/"+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// year extracts the leading four-digit year of a PubMed date like "2021 Mar 4".
func year(pubDate string) string {
	pubDate = strings.TrimSpace(pubDate)
	if len(pubDate) >= 4 {
		if _, err := strconv.Atoi(pubDate[:4]); err == nil {
			return pubDate[:4]
		}
	}
	return ""
}

// NotFound is the tool result for a lookup that produced nothing usable.
func NotFound(query string) string {
	return fmt.Sprintf("Nenhuma referência encontrada para %q.", query)
}

// Format renders articles as a numbered citation list.
func Format(query string, articles []Article) string {
	if len(articles) == 0 {
		return NotFound(query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Referências encontradas para %q:\n", query)
	for i, a := range articles {
		fmt.Fprintf(&b, "%d. %s", i+1, a.Title)
		switch {
		case a.Journal != "" && a.Year != "":
			fmt.Fprintf(&b, " %s, %s.", a.Journal, a.Year)
		case a.Journal != "":
			fmt.Fprintf(&b, " %s.", a.Journal)
		case a.Year != "":
			fmt.Fprintf(&b, " %s.", a.Year)
		}
		fmt.Fprintf(&b, " PMID %s\n", a.PMID)
	}
	return strings.TrimRight(b.String(), "\n")
}

type toolArgs struct {
	Consulta string `json:"consulta"`
}

// Tool returns the builtin tool backed by c. Every failure is reported to the
// model as a not-found result.
func (c *Client) Tool() tools.Tool {
	return tools.Tool{
		Definition: llm.ToolDefinition{
			Name:        ToolName,
			Description: "Busca referências bibliográficas na literatura médica (PubMed) para embasar achados, classificações e recomendações do laudo.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"consulta": map[string]any{
						"type":        "string",
						"description": "Termos de busca, preferencialmente em inglês.",
					},
				},
				"required": []string{"consulta"},
			},
		},
		Handler: c.handle,
		Timeout: c.cfg.Timeout,
	}
}

func (c *Client) handle(ctx context.Context, args string) (string, error) {
	var in toolArgs
	if err := json.Unmarshal([]byte(args), &in); err != nil || strings.TrimSpace(in.Consulta) == "" {
		return NotFound(in.Consulta), nil
	}
	query := strings.TrimSpace(in.Consulta)

	articles, err := c.Search(ctx, query)
	if err != nil {
		observe.Logger(ctx).Warn("search: lookup failed", "query", query, "err", err)
		return NotFound(query), nil
	}
	return Format(query, articles), nil
}
