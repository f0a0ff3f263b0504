package remote

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

const propfindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:resourcetype/>
    <d:getlastmodified/>
    <d:getcontentlength/>
  </d:prop>
</d:propfind>`

type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"DAV: response"`
}

type davResponse struct {
	Href      string     `xml:"DAV: href"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Prop struct {
		LastModified  string `xml:"DAV: getlastmodified"`
		ContentLength string `xml:"DAV: getcontentlength"`
		ResourceType  struct {
			Collection *struct{} `xml:"DAV: collection"`
		} `xml:"DAV: resourcetype"`
	} `xml:"DAV: prop"`
	Status string `xml:"DAV: status"`
}

// entry is one resource from a multistatus listing.
type entry struct {
	Href         string
	Name         string
	Size         int64
	LastModified time.Time
	Collection   bool
}

func parseMultistatus(body []byte) ([]entry, error) {
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(ms.Responses))
	for _, r := range ms.Responses {
		href := strings.TrimSpace(r.Href)
		if href == "" {
			continue
		}
		e := entry{Href: href}

		p := href
		if u, err := url.Parse(href); err == nil {
			p = u.Path
		}
		e.Name = path.Base(strings.TrimSuffix(p, "/"))

		for _, ps := range r.Propstats {
			if ps.Status != "" && !strings.Contains(ps.Status, " 200 ") {
				continue
			}
			if ps.Prop.ResourceType.Collection != nil {
				e.Collection = true
			}
			if ps.Prop.LastModified != "" {
				if t, err := http.ParseTime(strings.TrimSpace(ps.Prop.LastModified)); err == nil {
					e.LastModified = t
				}
			}
			if ps.Prop.ContentLength != "" {
				if n, err := strconv.ParseInt(strings.TrimSpace(ps.Prop.ContentLength), 10, 64); err == nil {
					e.Size = n
				}
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}
