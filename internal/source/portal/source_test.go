package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"program_catalog/internal/domain"
	"program_catalog/internal/source/httpx"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig(url string) Config {
	return Config{
		BaseURL:    url,
		ServiceKey: "key",
		PageSize:   2,
		MaxPages:   10,
		HTTP:       httpx.Config{Timeout: time.Second, MaxAttempts: 1},
	}
}

func bizinfoPage(page, total int, items ...map[string]any) map[string]any {
	return map[string]any{
		"response": map[string]any{
			"header": map[string]any{"resultCode": "00", "resultMsg": "NORMAL SERVICE."},
			"body": map[string]any{
				"items":      map[string]any{"item": items},
				"pageNo":     page,
				"numOfRows":  2,
				"totalCount": total,
			},
		},
	}
}

func bizItem(id int) map[string]any {
	return map[string]any{
		"pblancId":        fmt.Sprintf("PBLN_%03d", id),
		"pblancNm":        fmt.Sprintf("Program %d", id),
		"reqstBeginEndDe": "20240101 ~ 20240131",
		"pblancUrl":       fmt.Sprintf("/web/pblanc/%d", id),
		"hashtags":        "export,voucher",
	}
}

func TestFetch_PaginatesUntilTotal(t *testing.T) {
	var pages []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.URL.Query().Get("serviceKey"))
		page, _ := strconv.Atoi(r.URL.Query().Get("pageNo"))
		pages = append(pages, page)

		var resp map[string]any
		switch page {
		case 1:
			resp = bizinfoPage(1, 3, bizItem(1), bizItem(2))
		default:
			resp = bizinfoPage(2, 3, bizItem(3))
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	src := NewBizinfo(testConfig(srv.URL), discard)
	records, err := src.Fetch(context.Background())

	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []int{1, 2}, pages)
	assert.Equal(t, "PBLN_001", records[0].ExternalID)
	assert.Equal(t, "Program 1", records[0].Title)
	assert.Equal(t, "20240101 ~ 20240131", records[0].Period)
	assert.Equal(t, "https://www.bizinfo.go.kr/web/pblanc/1", records[0].SourceURL)
	assert.Equal(t, "PBLN_001", records[0].Payload["pblancId"])
	assert.Equal(t, domain.SourceBizinfo, src.ID())
}

func TestFetch_StopsAtMaxPages(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_ = json.NewEncoder(w).Encode(bizinfoPage(hits, 1000, bizItem(hits*2), bizItem(hits*2+1)))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxPages = 3
	records, err := NewBizinfo(cfg, discard).Fetch(context.Background())

	require.NoError(t, err)
	assert.Len(t, records, 6)
	assert.Equal(t, 3, hits)
}

func TestFetch_MissingTotalCountFollowsFullPages(t *testing.T) {
	var pages []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("pageNo"))
		pages = append(pages, page)

		var resp map[string]any
		if page < 3 {
			resp = bizinfoPage(page, 0, bizItem(page*2), bizItem(page*2+1))
		} else {
			resp = bizinfoPage(page, 0, bizItem(page*2))
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	records, err := NewBizinfo(testConfig(srv.URL), discard).Fetch(context.Background())

	require.NoError(t, err)
	assert.Len(t, records, 5)
	assert.Equal(t, []int{1, 2, 3}, pages)
}

func TestFetch_SingleItemObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"header":{"resultCode":"00"},"body":{"items":{"item":{"pbanc_sn":"174","biz_pbanc_nm":"Seed fund","pbanc_rcpt_end_dt":"20240630"}},"totalCount":1}}}`))
	}))
	defer srv.Close()

	records, err := NewKStartup(testConfig(srv.URL), discard).Fetch(context.Background())

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "174", records[0].ExternalID)
	assert.Equal(t, "Seed fund", records[0].Title)
	assert.Equal(t, "20240630", records[0].EndDate)
}

func TestFetch_EmptyItemsString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":{"header":{"resultCode":"00"},"body":{"items":"","totalCount":0}}}`))
	}))
	defer srv.Close()

	records, err := NewKStartup(testConfig(srv.URL), discard).Fetch(context.Background())

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetch_ResultCodes(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"22", domain.ErrRateLimited},
		{"30", domain.ErrSourceUnavailable},
		{"", domain.ErrParse},
	}
	for _, tc := range cases {
		t.Run("code_"+tc.code, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprintf(w, `{"response":{"header":{"resultCode":%q,"resultMsg":"msg"}}}`, tc.code)
			}))
			defer srv.Close()

			_, err := NewBizinfo(testConfig(srv.URL), discard).Fetch(context.Background())

			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), err.Error())
		})
	}
}

func TestFetch_MissingServiceKey(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.ServiceKey = ""

	_, err := NewBizinfo(cfg, discard).Fetch(context.Background())

	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestAbsoluteURL(t *testing.T) {
	assert.Equal(t, "https://a.kr/x", absoluteURL("https://a.kr/", "/x"))
	assert.Equal(t, "https://b.kr/y", absoluteURL("https://a.kr", "https://b.kr/y"))
	assert.Equal(t, "", absoluteURL("https://a.kr", ""))
}
