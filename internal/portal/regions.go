package portal

import "strings"

// regionCodes maps official region names to the portal's internal subject ids
// (selectedSubjectsIdNameHidden). The ids are stable portal identifiers, not
// OKATO codes.
var regionCodes = map[string]string{
	"Москва":                  "5277335",
	"Санкт-Петербург":         "5277384",
	"Московская область":      "5277327",
	"Краснодарский край":      "5277304",
	"Свердловская область":    "5277370",
	"Республика Татарстан":    "5277358",
	"Нижегородская область":   "5277336",
	"Новосибирская область":   "5277340",
	"Ростовская область":      "5277362",
	"Самарская область":       "5277364",
	"Челябинская область":     "5277387",
	"Красноярский край":       "5277305",
	"Пермский край":           "5277346",
	"Воронежская область":     "5277297",
	"Волгоградская область":   "5277293",
	"Башкортостан":            "5277287",
	"Саратовская область":     "5277366",
	"Тюменская область":       "5277375",
	"Оренбургская область":    "5277343",
	"Омская область":          "5277342",
	"Кемеровская область":     "5277300",
	"Хабаровский край":        "5277310",
	"Иркутская область":       "5277299",
	"Ленинградская область":   "5277316",
	"Алтайский край":          "5277282",
	"Приморский край":         "5277307",
	"Ульяновская область":     "5277377",
	"Ставропольский край":     "5277309",
	"Тульская область":        "5277374",
	"Владимирская область":    "5277292",
	"Ярославская область":     "5277391",
	"Калужская область":       "5277301",
	"Калининградская область": "5277302",
	"Томская область":         "5277372",
	"Рязанская область":       "5277363",
	"Тверская область":        "5277371",
	"Липецкая область":        "5277317",
	"Пензенская область":      "5277345",
	"Курская область":         "5277314",
	"Брянская область":        "5277290",
	"Белгородская область":    "5277288",
	"Архангельская область":   "5277284",
	"Смоленская область":      "5277368",
	"Вологодская область":     "5277294",
	"Курганская область":      "5277313",
	"Мурманская область":      "5277331",
	"Орловская область":       "5277344",
	"Тамбовская область":      "5277369",
	"Новгородская область":    "5277339",
	"Кировская область":       "5277303",
	"Костромская область":     "5277311",
	"Псковская область":       "5277351",
	"Ивановская область":      "5277298",
	"Амурская область":        "5277283",
	"Астраханская область":    "5277285",
	"Забайкальский край":      "5277306",
	"Республика Крым":         "9311040",
	"Севастополь":             "9310785",
}

// ResolveRegionCodes maps region names to portal subject ids. Exact name
// match first, then case-insensitive partial match in either direction.
// Unknown regions are silently skipped; region filtering for them happens
// client-side after enrichment.
func ResolveRegionCodes(regions []string) []string {
	var codes []string
	for _, region := range regions {
		if code, ok := regionCodes[region]; ok {
			codes = append(codes, code)
			continue
		}
		lower := strings.ToLower(region)
		for name, code := range regionCodes {
			nameLower := strings.ToLower(name)
			if strings.Contains(nameLower, lower) || strings.Contains(lower, nameLower) {
				codes = append(codes, code)
				break
			}
		}
	}
	return codes
}

// KnownRegions returns the official region names accepted by the portal
// query builder, for filter validation on the front-end.
func KnownRegions() []string {
	names := make([]string, 0, len(regionCodes))
	for name := range regionCodes {
		names = append(names, name)
	}
	return names
}
