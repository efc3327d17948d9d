package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// RosterProbe checks a web roster page for the watched name before the
// bot joins the server. The backend answers a name search with an HTML
// table whose second column carries the online state.
type RosterProbe struct {
	client   *http.Client
	backend  string
	username string
}

func NewRosterProbe(backend, username string, timeout time.Duration) *RosterProbe {
	return &RosterProbe{
		client:   &http.Client{Timeout: timeout},
		backend:  backend,
		username: username,
	}
}

// Online reports whether the roster lists the watched name as online.
func (p *RosterProbe) Online(ctx context.Context) (bool, error) {
	form := url.Values{
		"usersuche": {p.username},
		"username":  {""},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.backend, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("roster request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("roster request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("roster request: unexpected status %s", resp.Status)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return false, fmt.Errorf("roster parse: %w", err)
	}
	tbody := findElement(doc, "tbody")
	if tbody == nil {
		return false, fmt.Errorf("roster parse: no result table")
	}
	row := findElement(tbody, "tr")
	if row == nil {
		return false, fmt.Errorf("roster parse: no result row")
	}
	cells := collectElements(row, "td")
	if len(cells) <= 2 {
		return false, nil
	}
	return strings.EqualFold(strings.TrimSpace(textContent(cells[1])), "online"), nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func collectElements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			out = append(out, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
