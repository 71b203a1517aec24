// Package feed renders a user's completed articles as an RSS 2.0 podcast
// feed with itunes extensions.
package feed

import (
	"encoding/xml"
	"fmt"
	"time"

	"storyspool/internal/models"
)

const (
	itunesNS = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	atomNS   = "http://www.w3.org/2005/Atom"
)

// Channel describes the feed-level metadata.
type Channel struct {
	Title       string
	Link        string
	Description string
	Language    string
	Author      string
	OwnerName   string
	OwnerEmail  string
	ImageURL    string
}

type rssDoc struct {
	XMLName  xml.Name   `xml:"rss"`
	Version  string     `xml:"version,attr"`
	ItunesNS string     `xml:"xmlns:itunes,attr"`
	AtomNS   string     `xml:"xmlns:atom,attr"`
	Channel  rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string         `xml:"title"`
	Link          string         `xml:"link"`
	Description   string         `xml:"description"`
	Language      string         `xml:"language"`
	LastBuildDate string         `xml:"lastBuildDate"`
	AtomLink      atomLink       `xml:"atom:link"`
	ItunesAuthor  string         `xml:"itunes:author"`
	Owner         itunesOwner    `xml:"itunes:owner"`
	Explicit      string         `xml:"itunes:explicit"`
	Category      itunesCategory `xml:"itunes:category"`
	Image         *itunesImage   `xml:"itunes:image,omitempty"`
	Items         []rssItem      `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type itunesOwner struct {
	Name  string `xml:"itunes:name"`
	Email string `xml:"itunes:email"`
}

type itunesCategory struct {
	Text string `xml:"text,attr"`
}

type itunesImage struct {
	Href string `xml:"href,attr"`
}

type rssItem struct {
	Title         string    `xml:"title"`
	GUID          rssGUID   `xml:"guid"`
	PubDate       string    `xml:"pubDate"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Enclosure     enclosure `xml:"enclosure"`
	ItunesAuthor  string    `xml:"itunes:author"`
	ItunesSummary string    `xml:"itunes:summary"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type enclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

// Build renders the feed XML for the given channel and articles. Articles
// without audio are skipped; the feed is the user's listenable backlog.
func Build(ch Channel, articles []models.Article, now time.Time) ([]byte, error) {
	if ch.Language == "" {
		ch.Language = "en-us"
	}
	doc := rssDoc{
		Version:  "2.0",
		ItunesNS: itunesNS,
		AtomNS:   atomNS,
		Channel: rssChannel{
			Title:         ch.Title,
			Link:          ch.Link,
			Description:   ch.Description,
			Language:      ch.Language,
			LastBuildDate: now.UTC().Format(time.RFC1123),
			AtomLink:      atomLink{Href: ch.Link, Rel: "self", Type: "application/rss+xml"},
			ItunesAuthor:  ch.Author,
			Owner:         itunesOwner{Name: ch.OwnerName, Email: ch.OwnerEmail},
			Explicit:      "no",
			Category:      itunesCategory{Text: "News"},
		},
	}
	if ch.ImageURL != "" {
		doc.Channel.Image = &itunesImage{Href: ch.ImageURL}
	}

	for _, a := range articles {
		if a.AudioURL == "" {
			continue
		}
		item := rssItem{
			Title:        a.Title,
			GUID:         rssGUID{IsPermaLink: "false", Value: a.ID},
			PubDate:      a.CreatedAt.UTC().Format(time.RFC1123),
			Link:         a.URL,
			Enclosure:    enclosure{URL: a.AudioURL, Type: "audio/mpeg"},
			ItunesAuthor: orDefault(a.Author, "StorySpool"),
		}
		if a.Summary != nil {
			item.Description = *a.Summary
			item.ItunesSummary = *a.Summary
		}
		doc.Channel.Items = append(doc.Channel.Items, item)
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal feed: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// DefaultChannel is the feed header for a user when no custom branding is
// configured.
func DefaultChannel(userID, articlesURL string) Channel {
	return Channel{
		Title:       fmt.Sprintf("StorySpool Feed for %s", userID),
		Link:        articlesURL,
		Description: "Your personal feed of narrated articles from StorySpool.",
		Author:      "StorySpool",
		OwnerName:   "StorySpool",
		OwnerEmail:  "support@storyspool.com",
	}
}

func orDefault(s *string, def string) string {
	if s != nil && *s != "" {
		return *s
	}
	return def
}
