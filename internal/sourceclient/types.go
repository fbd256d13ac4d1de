package sourceclient

import (
	"time"

	"github.com/basket/pixivbot-go/internal/model"
)

type illustListResponse struct {
	Illusts []illustDTO `json:"illusts"`
}

// rankingResponse additionally carries next_url, whose "date" query
// parameter is the ranking date this page was actually served for — the
// source never puts the date on the illusts themselves.
type rankingResponse struct {
	Illusts []illustDTO `json:"illusts"`
	NextURL string      `json:"next_url"`
}

type illustDetailResponse struct {
	Illust illustDTO `json:"illust"`
}

type userDetailResponse struct {
	User userDTO `json:"user"`
}

type userDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type tagDTO struct {
	Name string `json:"name"`
}

type imageURLsDTO struct {
	Original string `json:"original"`
}

type metaPageDTO struct {
	ImageURLs imageURLsDTO `json:"image_urls"`
}

type illustDTO struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	User         userDTO       `json:"user"`
	Tags         []tagDTO      `json:"tags"`
	PageCount    int           `json:"page_count"`
	MetaSingle   imageURLsDTO  `json:"meta_single_page"`
	MetaPages    []metaPageDTO `json:"meta_pages"`
	CreateDate   string        `json:"create_date"` // RFC3339
	SanityLevel  int           `json:"sanity_level"`
}

func toWorks(dtos []illustDTO) []model.Work {
	out := make([]model.Work, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, toWork(d))
	}
	return out
}

func toWork(d illustDTO) model.Work {
	tags := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		tags = append(tags, t.Name)
	}

	urls := make([]string, 0, d.PageCount)
	if len(d.MetaPages) > 0 {
		for _, p := range d.MetaPages {
			urls = append(urls, p.ImageURLs.Original)
		}
	} else if d.MetaSingle.Original != "" {
		urls = append(urls, d.MetaSingle.Original)
	}

	created, _ := time.Parse(time.RFC3339, d.CreateDate)

	return model.Work{
		ID:         d.ID,
		Title:      d.Title,
		AuthorID:   d.User.ID,
		AuthorName: d.User.Name,
		Tags:       tags,
		PageCount:  d.PageCount,
		ImageURLs:  urls,
		CreatedAt:  created,
		Sensitive:  d.SanityLevel >= sensitiveThreshold,
	}
}
