package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const googleBooksBase = "https://www.googleapis.com/books/v1/volumes"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrMetadataNotFound = errors.New("no volume found for isbn")

// googleBooksVolumesResp is the response from GET /volumes?q=isbn:...
type googleBooksVolumesResp struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title               string   `json:"title"`
			Subtitle            string   `json:"subtitle"`
			Authors             []string `json:"authors"`
			Publisher           string   `json:"publisher"`
			PublishedDate       string   `json:"publishedDate"`
			Description         string   `json:"description"`
			Categories          []string `json:"categories"`
			IndustryIdentifiers []struct {
				Type       string `json:"type"`
				Identifier string `json:"identifier"`
			} `json:"industryIdentifiers"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// BookMetadata is the subset of a volume that maps onto a catalog entry.
type BookMetadata struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Category    string `json:"category,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	PublishYear int    `json:"publishYear,omitempty"`
	Description string `json:"description,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
}

// MetadataClient queries the Google Books volumes API.
type MetadataClient struct {
	HTTP    *http.Client
	BaseURL string
}

// NewMetadataClient has a short timeout so a slow upstream does not hold the request.
func NewMetadataClient() *MetadataClient {
	return &MetadataClient{
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		BaseURL: googleBooksBase,
	}
}

var defaultMetadataClient = NewMetadataClient()

// FetchMetadataByISBN looks up isbn with the default client.
func FetchMetadataByISBN(ctx context.Context, isbn string) (*BookMetadata, error) {
	return defaultMetadataClient.Fetch(ctx, isbn)
}

func (c *MetadataClient) Fetch(ctx context.Context, isbn string) (*BookMetadata, error) {
	isbn = strings.ReplaceAll(strings.TrimSpace(isbn), "-", "")
	if isbn == "" {
		return nil, fmt.Errorf("isbn is required")
	}
	q := url.Values{}
	q.Set("q", "isbn:"+isbn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google books returned %d", resp.StatusCode)
	}
	var data googleBooksVolumesResp
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	if data.TotalItems == 0 || len(data.Items) == 0 {
		return nil, fmt.Errorf("%w %s", ErrMetadataNotFound, isbn)
	}
	vi := data.Items[0].VolumeInfo
	meta := &BookMetadata{
		ISBN:        isbn,
		Title:       vi.Title,
		Author:      strings.Join(vi.Authors, ", "),
		Publisher:   vi.Publisher,
		PublishYear: publishYear(vi.PublishedDate),
		Description: strings.TrimSpace(vi.Description),
	}
	if vi.Subtitle != "" {
		meta.Title = meta.Title + ": " + vi.Subtitle
	}
	for _, id := range vi.IndustryIdentifiers {
		if id.Type == "ISBN_13" {
			meta.ISBN = id.Identifier
			break
		}
	}
	if len(vi.Categories) > 0 {
		meta.Category = vi.Categories[0]
	}
	// Google Books image links often require a captcha; Open Library does not.
	meta.CoverURL = openLibraryCoverURL(meta.ISBN, "L")
	return meta, nil
}

// publishYear takes the year from "2005", "2005-08" or "2005-08-01".
func publishYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}

// openLibraryCoverURL returns a direct cover image URL by ISBN. Size: S, M or L.
func openLibraryCoverURL(isbn, size string) string {
	clean := strings.ReplaceAll(strings.TrimSpace(isbn), "-", "")
	if clean == "" {
		return ""
	}
	return "https://covers.openlibrary.org/b/isbn/" + url.PathEscape(clean) + "-" + size + ".jpg"
}
