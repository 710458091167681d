package portal

import (
	"strings"

	"program_catalog/internal/domain"
	"program_catalog/internal/source/payload"
)

// Bizinfo is the business support announcement dataset.
var Bizinfo = Dataset{
	ID:   domain.SourceBizinfo,
	Name: "Bizinfo Support Programs",
	Map: func(item map[string]any) domain.RawRecord {
		return domain.RawRecord{
			ExternalID:     payload.Str(item, "pblancId"),
			Title:          payload.Str(item, "pblancNm"),
			Description:    payload.Str(item, "bsnsSumryCn"),
			Category:       payload.Str(item, "pldirSportRealmLclasCodeNm"),
			TargetAudience: payload.List(item, "trgetNm"),
			TargetLocation: payload.List(item, "jrsdInsttNm"),
			Keywords:       payload.List(item, "hashtags"),
			BudgetRange:    payload.Str(item, "sportScale"),
			Period:         payload.Str(item, "reqstBeginEndDe"),
			SourceURL:      absoluteURL("https://www.bizinfo.go.kr", payload.Str(item, "pblancUrl")),
			AttachmentURL:  payload.Str(item, "flpthNm"),
			Payload:        item,
		}
	},
}

// KStartup is the startup support announcement dataset.
var KStartup = Dataset{
	ID:   domain.SourceKStartup,
	Name: "K-Startup Announcements",
	Map: func(item map[string]any) domain.RawRecord {
		return domain.RawRecord{
			ExternalID:     payload.Str(item, "pbanc_sn"),
			Title:          payload.Str(item, "biz_pbanc_nm", "intg_pbanc_biz_nm"),
			Description:    payload.Str(item, "pbanc_ctnt"),
			Category:       payload.Str(item, "supt_biz_clsfc"),
			TargetAudience: payload.List(item, "aply_trgt"),
			TargetLocation: payload.List(item, "supt_regin"),
			Keywords:       payload.List(item, "biz_enyy"),
			StartDate:      payload.Str(item, "pbanc_rcpt_bgng_dt"),
			EndDate:        payload.Str(item, "pbanc_rcpt_end_dt"),
			SourceURL:      payload.Str(item, "detl_pg_url"),
			Payload:        item,
		}
	},
}

func absoluteURL(base, ref string) string {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(ref, "/")
}
