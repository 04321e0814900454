package catalog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/orbitdeck/model"
)

// ParseTLE reads a three-line-element feed (name line followed by the two
// TLE lines) and returns one CatalogEntry per well-formed record, tagged with
// the given category. Malformed records are skipped and reported in the
// returned skip count; they never abort the whole feed.
func ParseTLE(r io.Reader, category model.Category) (entries []model.CatalogEntry, skipped int, err error) {
	scanner := bufio.NewScanner(r)

	var name string
	var line1 string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "1 "):
			line1 = line
		case strings.HasPrefix(line, "2 "):
			if line1 == "" {
				// Orphan second line.
				skipped++
				name = ""
				continue
			}
			entry, perr := parseRecord(name, line1, line, category)
			if perr != nil {
				skipped++
			} else {
				entries = append(entries, entry)
			}
			name = ""
			line1 = ""
		default:
			name = strings.TrimSpace(line)
			line1 = ""
		}
	}
	if serr := scanner.Err(); serr != nil {
		return entries, skipped, fmt.Errorf("read TLE feed: %w", serr)
	}
	if line1 != "" {
		// Trailing first line without its pair.
		skipped++
	}
	return entries, skipped, nil
}

// parseRecord validates a single TLE line pair and extracts the fields the
// curation layer scores and buckets on.
func parseRecord(name, line1, line2 string, category model.Category) (model.CatalogEntry, error) {
	if len(line1) < 63 || len(line2) < 63 {
		return model.CatalogEntry{}, fmt.Errorf("%w: short TLE line", ErrParse)
	}

	id := strings.TrimSpace(line1[2:7])
	if id == "" {
		return model.CatalogEntry{}, fmt.Errorf("%w: missing catalog number", ErrParse)
	}
	if id2 := strings.TrimSpace(line2[2:7]); id2 != id {
		return model.CatalogEntry{}, fmt.Errorf("%w: catalog number mismatch %q vs %q", ErrParse, id, id2)
	}

	epoch, err := parseTLEEpoch(line1[18:32])
	if err != nil {
		return model.CatalogEntry{}, err
	}

	incl, err := parseTLEFloat(line2[8:16], "inclination")
	if err != nil {
		return model.CatalogEntry{}, err
	}
	raan, err := parseTLEFloat(line2[17:25], "right ascension")
	if err != nil {
		return model.CatalogEntry{}, err
	}
	eccRaw := strings.TrimSpace(line2[26:33])
	ecc, err := strconv.ParseFloat("0."+eccRaw, 64)
	if err != nil {
		return model.CatalogEntry{}, fmt.Errorf("%w: eccentricity %q", ErrParse, eccRaw)
	}
	meanMotion, err := parseTLEFloat(line2[52:63], "mean motion")
	if err != nil {
		return model.CatalogEntry{}, err
	}
	if meanMotion <= 0 {
		return model.CatalogEntry{}, fmt.Errorf("%w: non-positive mean motion", ErrParse)
	}

	if name == "" {
		name = id
	}

	return model.CatalogEntry{
		ID:       id,
		Name:     name,
		Category: category,
		Elements: model.OrbitalElements{
			Line1:          line1,
			Line2:          line2,
			InclinationDeg: incl,
			RAANDeg:        raan,
			Eccentricity:   ecc,
			MeanMotion:     meanMotion,
			Epoch:          epoch,
		},
		Epoch:    epoch,
		IsActive: true,
	}, nil
}

// parseTLEEpoch decodes the YYDDD.DDDDDDDD epoch field. Two-digit years
// 57-99 map to the 1900s per convention, everything else to the 2000s.
func parseTLEEpoch(field string) (time.Time, error) {
	field = strings.TrimSpace(field)
	if len(field) < 5 {
		return time.Time{}, fmt.Errorf("%w: epoch %q", ErrParse, field)
	}
	yy, err := strconv.Atoi(field[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: epoch year %q", ErrParse, field)
	}
	doy, err := strconv.ParseFloat(field[2:], 64)
	if err != nil || doy < 1 || doy >= 367 {
		return time.Time{}, fmt.Errorf("%w: epoch day %q", ErrParse, field)
	}

	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}

	dayStart := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return dayStart.Add(time.Duration((doy - 1) * float64(24*time.Hour))), nil
}

func parseTLEFloat(field, what string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrParse, what, field)
	}
	return v, nil
}
