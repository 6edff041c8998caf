package model

// SourceRecord is a news source and the ownership data used to judge independence
type SourceRecord struct {
	ID                   string   `yaml:"id" json:"id"`
	Name                 string   `yaml:"name" json:"name"`
	Owner                string   `yaml:"owner" json:"owner"`
	InstitutionalHolders []Holder `yaml:"institutional_holders,omitempty" json:"institutional_holders,omitempty"`
	Ratings              Ratings  `yaml:"ratings" json:"ratings"`

	// Fetch metadata: RSS is tried first, HTML scraping with ScrapeSelector second
	URL            string `yaml:"url,omitempty" json:"url,omitempty"`
	RSS            string `yaml:"rss,omitempty" json:"rss,omitempty"`
	ScrapeSelector string `yaml:"scrape_selector,omitempty" json:"scrape_selector,omitempty"`
}

// Holder is a major stakeholder of a source's parent organization
type Holder struct {
	Name    string  `yaml:"name" json:"name"`
	Percent float64 `yaml:"percent,omitempty" json:"percent,omitempty"`
}

// Ratings carries published quality scores for a source
type Ratings struct {
	Accuracy float64 `yaml:"accuracy" json:"accuracy"`
}

// HolderNames returns the set of institutional holder names
func (s SourceRecord) HolderNames() map[string]struct{} {
	names := make(map[string]struct{}, len(s.InstitutionalHolders))
	for _, h := range s.InstitutionalHolders {
		if h.Name != "" {
			names[h.Name] = struct{}{}
		}
	}
	return names
}
