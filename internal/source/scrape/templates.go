package scrape

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"program_catalog/internal/domain"
)

// MSSBoard is the ministry announcement board: one table row per program.
var MSSBoard = Template{
	ID:        domain.SourceMSS,
	Name:      "MSS Announcement Board",
	Container: "table.board_list",
	Rows:      "tbody tr",
	Parse: func(row *goquery.Selection, page *url.URL) (domain.RawRecord, bool) {
		link := row.Find("td.subject a").First()
		title := text(link)
		if title == "" {
			return domain.RawRecord{}, false
		}

		href, _ := link.Attr("href")
		detail := resolve(page, href)
		file, _ := row.Find("td.file a").First().Attr("href")

		rec := domain.RawRecord{
			ExternalID:     queryParam(detail, "bcIdx"),
			Title:          title,
			Category:       text(row.Find("td.category")),
			TargetLocation: nonEmpty(text(row.Find("td.org"))),
			Period:         text(row.Find("td.period")),
			SourceURL:      detail,
			AttachmentURL:  resolve(page, file),
		}
		rec.Payload = map[string]any{
			"no":       text(row.Find("td.num")),
			"title":    rec.Title,
			"href":     href,
			"category": rec.Category,
			"org":      text(row.Find("td.org")),
			"period":   rec.Period,
			"file":     file,
		}
		return rec, true
	},
}

// KisedBoard is the startup agency card list.
var KisedBoard = Template{
	ID:        domain.SourceKised,
	Name:      "KISED Program Cards",
	Container: "ul.biz_list",
	Rows:      "li",
	Parse: func(card *goquery.Selection, page *url.URL) (domain.RawRecord, bool) {
		title := text(card.Find(".tit"))
		if title == "" {
			return domain.RawRecord{}, false
		}

		link := card.Find("a").First()
		href, _ := link.Attr("href")
		id, _ := link.Attr("data-id")

		var tags []string
		card.Find(".tag span").Each(func(_ int, s *goquery.Selection) {
			tags = append(tags, strings.TrimPrefix(text(s), "#"))
		})

		rec := domain.RawRecord{
			ExternalID:     id,
			Title:          title,
			Description:    text(card.Find(".desc")),
			Category:       text(card.Find(".category")),
			TargetAudience: nonEmpty(text(card.Find(".target"))),
			Keywords:       tags,
			Period:         text(card.Find(".date")),
			SourceURL:      resolve(page, href),
		}
		rec.Payload = map[string]any{
			"id":       id,
			"title":    title,
			"href":     href,
			"category": rec.Category,
			"target":   text(card.Find(".target")),
			"date":     rec.Period,
			"tags":     tags,
		}
		return rec, true
	},
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

func resolve(page *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") || href == "#" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return page.ResolveReference(ref).String()
}

func queryParam(rawURL, key string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}
