package category

import (
	"regexp"
	"slices"
	"strings"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

// rowTrayPattern is the shelving format for row/tray data, e.g. "R01M02S03"
var rowTrayPattern = regexp.MustCompile(`^R.*M.*S`)

// Notes that take an item out of row/tray checks
var excludedNotes = []string{
	"At WRLC waiting to be processed",
	"DO NOT DELETE",
	"WD",
}

// Shelving locations that never carry row/tray data
var skipLocations = []string{
	"WRLC Gemtrac Drawer",
	"WRLC Microfilm Cabinet",
	"WRLC Microfiche Cabinet",
	"Low Temperature Media Preservation Unit  # 1 @ SCF",
}

// Provenance notes of the member institutions whose items are checked at SCF
var checkedProvenance = []string{
	"Property of American University",
	"Property of American University Law School",
	"Property of Catholic University of America",
	"Property of Gallaudet University",
	"Property of George Mason University",
	"Property of George Washington Himmelfarb",
	"Property of George Washington University",
	"Property of George Washington University School of Law",
	"Property of Georgetown University",
	"Property of Georgetown University School of Law",
	"Property of Howard University",
	"Property of Marymount University",
	"Property of National Security Archive",
	"Property of University of the District of Columbia",
	"Property of University of the District of Columbia Jazz Archives",
}

// IZ locations whose items are expected to be shelved at SCF
var checkedIZLocations = []string{
	"auscfgen", "auscfspec", "auscfmus", "auscfgenp", "auscfcmc",
	"WRLC", "wrlc_shrd", "wrlc_cntr", "wrlc_shrp",
	"ofstr", "offs",
	"ocs", "ocsk", "ocskp", "ocsmf", "ocsmr", "ocsp", "ocspw", "ocssc", "ocst", "ocsv", "ocsvc", "ocswd",
	"huwrlc", "huwrlcdup", "huwrlcmicr", "huwrlcper", "huwrlcperm", "huwrlcret",
	"wrlc stor", "wrlc stru", "wrlc stnc", "wrlc shrp", "wrlc dism", "wrlc disp", "wrlc cstk",
	"wrlc dfbk", "wrlc dflm", "wrlc dfmd", "wrlc cgrc", "wrlc sgrc",
	"wrlcstoret", "wrlcstnret", "wrlc micro", "wrlcscfrs",
	"WRLC CAT", "WRLC SCF", "WRLCDIG",
	"wrlc", "wrlc almon", "wrlc alper", "wrlc cunc", "wrlc danc",
	"wrlc gtdp", "wrlc gtkib", "wrlc gtkip", "wrlc gtmo", "wrlc gtnc", "wrlc gtsp", "wrlc gtspe", "wrlc gtthe",
	"wrlc gtv", "wrlc gtvc", "wrlc hida", "wrlc himm", "wrlc resv", "wrlc shrm", "wrlc snsa",
	"wrlc test", "wrlc test2", "wrlc wood", "wrlc woodc",
	"wrlc_ebks", "wrlc_rstcd", "wrlc_video",
	"wrlccunc", "wrlcstndup", "wrlcstodup", "wrlcstrret",
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// missingRowTray reports an item with no alternative call number at all
func missingRowTray(item *domain.Item) bool {
	return item.AlternativeCallNumber == ""
}

// wrongRowTray reports whether any set row/tray field fails the shelving
// format. With skipShelved, fields naming a skip location are ignored.
func wrongRowTray(item *domain.Item, skipShelved bool) bool {
	for _, value := range []string{item.AlternativeCallNumber, item.InternalNote1} {
		if isBlank(value) {
			continue
		}
		if skipShelved && containsAny(value, skipLocations) {
			continue
		}
		if !rowTrayPattern.MatchString(value) {
			return true
		}
	}
	return false
}

// hasValidRowTray reports whether at least one field carries well-formed row/tray data
func hasValidRowTray(item *domain.Item) bool {
	for _, value := range []string{item.AlternativeCallNumber, item.InternalNote1} {
		if !isBlank(value) && rowTrayPattern.MatchString(value) {
			return true
		}
	}
	return false
}

func hasExcludedNote(item *domain.Item) bool {
	note := strings.ToLower(strings.TrimSpace(item.InternalNote1))
	if note == "" {
		return false
	}
	return slices.ContainsFunc(excludedNotes, func(excluded string) bool {
		return strings.ToLower(strings.TrimSpace(excluded)) == note
	})
}

func inDiscardLocation(item *domain.Item) bool {
	return strings.Contains(strings.ToLower(item.Location), "disc") ||
		strings.Contains(strings.ToLower(item.TempLocation), "disc")
}

func inCheckedIZLocation(item *domain.Item) bool {
	return slices.Contains(checkedIZLocations, item.Location) ||
		slices.Contains(checkedIZLocations, item.TempLocation)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
