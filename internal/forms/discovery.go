package forms

import (
	"sort"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DiscoverySelector matches elements that opted in through markup.
const DiscoverySelector = ".klaviyo-form, [data-klaviyo-form], [data-klaviyo-account-id], [data-klaviyo-list-id]"

// Discovery finds candidate forms: markup matches first in document order,
// then elements named by id in the configured forms table.
type Discovery struct {
	formIDs []string
}

// NewDiscovery returns a discovery that also looks up the given element ids.
func NewDiscovery(formIDs ...string) *Discovery {
	ids := append([]string(nil), formIDs...)
	sort.Strings(ids)
	return &Discovery{formIDs: ids}
}

// Find returns each matching element once, in discovery order.
func (d *Discovery) Find(page *Page) []*Form {
	seen := make(map[*html.Node]bool)
	var out []*Form

	add := func(sel *goquery.Selection) {
		sel.Each(func(_ int, s *goquery.Selection) {
			n := s.Get(0)
			if seen[n] {
				return
			}
			seen[n] = true
			out = append(out, newForm(page, s))
		})
	}

	add(page.Find(DiscoverySelector))
	for _, id := range d.formIDs {
		add(page.ElementByID(id))
	}
	return out
}
