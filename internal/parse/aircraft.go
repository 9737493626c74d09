package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"skytrace-backend/internal/model"
)

// Source type tags accepted from feeds.
const (
	TypeADSBICAO = "adsb_icao"
	TypeModeS    = "mode_s"
	TypeTISB     = "tisb"
	TypeMLAT     = "mlat"
)

// Barometric altitude bounds in feet.
const (
	MinAltitude = -1000
	MaxAltitude = 60000
)

const groundToken = "ground"

// Column sizes of the free-text fields on model.AircraftState.
const (
	maxFlightLen       = 16
	maxRegistrationLen = 16
	maxTypeCodeLen     = 8
	maxSquawkLen       = 4
	maxCategoryLen     = 4
	maxEmergencyLen    = 16
	maxSILTypeLen      = 16
)

var validTypes = map[string]struct{}{
	TypeADSBICAO: {},
	TypeModeS:    {},
	TypeTISB:     {},
	TypeMLAT:     {},
}

var (
	ErrEmptyRecord        = errors.New("empty record")
	ErrInvalidHex         = errors.New("invalid hex address")
	ErrInvalidType        = errors.New("unknown source type")
	ErrPositionOutOfRange = errors.New("position out of range")
	ErrInvalidAltitude    = errors.New("invalid barometric altitude")
)

// ValidHex reports whether s is exactly six hexadecimal digits, in any case.
func ValidHex(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// ValidType reports whether s is one of the known source type tags.
func ValidType(s string) bool {
	_, ok := validTypes[s]
	return ok
}

// Check returns the reason a raw feed record is rejected, or nil if it is acceptable.
func Check(raw map[string]any) error {
	if len(raw) == 0 {
		return ErrEmptyRecord
	}

	hex, _ := raw["hex"].(string)
	if !ValidHex(hex) {
		return fmt.Errorf("%w: %v", ErrInvalidHex, raw["hex"])
	}

	typ, _ := raw["type"].(string)
	if !ValidType(typ) {
		return fmt.Errorf("%w: %v", ErrInvalidType, raw["type"])
	}

	// Unparseable coordinates are treated as absent; present ones must be in range.
	lat, _ := Float(raw["lat"])
	lon, _ := Float(raw["lon"])
	if (lat != nil && !validLatitude(*lat)) || (lon != nil && !validLongitude(*lon)) {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrPositionOutOfRange, raw["lat"], raw["lon"])
	}

	if alt, ok := raw["alt_baro"]; ok && !isGround(alt) {
		f, err := Float(alt)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAltitude, err)
		}
		if f != nil && (*f < MinAltitude || *f > MaxAltitude) {
			return fmt.Errorf("%w: %v outside [%d, %d]", ErrInvalidAltitude, *f, MinAltitude, MaxAltitude)
		}
	}
	return nil
}

// Validate reports whether a raw feed record is acceptable. It never panics.
func Validate(raw map[string]any) bool {
	return Check(raw) == nil
}

// Transform normalizes raw feed records into aircraft rows tagged with dataSource.
// Records that fail Check are skipped. TenantID and ID are left for the store to assign.
func Transform(raws []map[string]any, dataSource string) []model.Aircraft {
	out := make([]model.Aircraft, 0, len(raws))
	for _, raw := range raws {
		if Check(raw) != nil {
			continue
		}
		out = append(out, normalize(raw, dataSource))
	}
	return out
}

func normalize(raw map[string]any, dataSource string) model.Aircraft {
	hex := strings.ToLower(raw["hex"].(string))
	f := fieldReader{raw: raw, hex: hex}

	state := model.AircraftState{
		Type:             raw["type"].(string),
		Flight:           f.text("flight", maxFlightLen),
		Registration:     f.text("r", maxRegistrationLen),
		AircraftTypeCode: f.text("t", maxTypeCodeLen),
		DBFlags:          f.int("dbFlags"),
		Squawk:           f.text("squawk", maxSquawkLen),
		Emergency:        f.emergency("emergency"),
		Category:         f.text("category", maxCategoryLen),

		Latitude:     f.float("lat"),
		Longitude:    f.float("lon"),
		AltitudeBaro: f.altitude("alt_baro"),
		AltitudeGeom: f.int("alt_geom"),
		GroundSpeed:  f.float("gs"),
		Track:        f.heading("track"),
		TrueHeading:  f.heading("true_heading"),
		VerticalRate: f.int("geom_rate"),

		NIC:     f.indicator("nic"),
		NACp:    f.indicator("nac_p"),
		NACv:    f.indicator("nac_v"),
		SIL:     f.indicator("sil"),
		SILType: f.text("sil_type", maxSILTypeLen),
		SDA:     f.indicator("sda"),

		Messages: f.int("messages"),
		Seen:     f.float("seen"),
		SeenPos:  f.float("seen_pos"),
		RSSI:     f.float("rssi"),

		GPSOkBefore: f.float("gpsOkBefore"),
		GPSOkLat:    f.float("gpsOkLat"),
		GPSOkLon:    f.float("gpsOkLon"),

		DataSource: dataSource,
	}
	if state.VerticalRate == nil {
		state.VerticalRate = f.int("baro_rate")
	}

	if !state.HasPosition() {
		if pos, lat, lon, ok := lastPosition(raw); ok {
			state.Latitude, state.Longitude = &lat, &lon
			last := fieldReader{raw: pos, hex: hex}
			if state.NIC == nil {
				state.NIC = last.indicator("nic")
			}
			if state.SeenPos == nil {
				state.SeenPos = last.float("seen_pos")
			}
		}
	}

	if b, err := json.Marshal(raw); err == nil {
		state.RawData = b
	}

	return model.Aircraft{Hex: hex, AircraftState: state}
}

// FallbackPosition looks for a last known position under "lastPosition",
// then under "raw_data"."lastPosition". Only in-range pairs are returned.
func FallbackPosition(raw map[string]any) (lat, lon float64, ok bool) {
	_, lat, lon, ok = lastPosition(raw)
	return lat, lon, ok
}

func lastPosition(raw map[string]any) (map[string]any, float64, float64, bool) {
	candidates := []any{raw["lastPosition"]}
	if wrapper, isMap := raw["raw_data"].(map[string]any); isMap {
		candidates = append(candidates, wrapper["lastPosition"])
	}
	for _, c := range candidates {
		pos, isMap := c.(map[string]any)
		if !isMap {
			continue
		}
		if lat, lon, ok := positionOf(pos); ok {
			return pos, lat, lon, true
		}
	}
	return nil, 0, 0, false
}

func positionOf(m map[string]any) (float64, float64, bool) {
	lat, errLat := Float(m["lat"])
	lon, errLon := Float(m["lon"])
	if errLat != nil || errLon != nil || lat == nil || lon == nil {
		return 0, 0, false
	}
	if !validLatitude(*lat) || !validLongitude(*lon) {
		return 0, 0, false
	}
	return *lat, *lon, true
}

func validLatitude(v float64) bool  { return v >= -90 && v <= 90 }
func validLongitude(v float64) bool { return v >= -180 && v <= 180 }

func isGround(v any) bool {
	s, ok := v.(string)
	return ok && strings.EqualFold(strings.TrimSpace(s), groundToken)
}


// fieldReader coerces individual fields. A field that fails to parse is
// logged and left nil without affecting the rest of the record.
type fieldReader struct {
	raw map[string]any
	hex string
}

func (r fieldReader) float(key string) *float64 {
	v, err := Float(r.raw[key])
	if err != nil {
		r.drop(key, err)
	}
	return v
}

func (r fieldReader) int(key string) *int {
	v, err := Int(r.raw[key])
	if err != nil {
		r.drop(key, err)
	}
	return v
}

func (r fieldReader) heading(key string) *float64 {
	v := r.float(key)
	if v != nil && (*v < 0 || *v >= 360) {
		r.drop(key, fmt.Errorf("%v outside [0, 360)", *v))
		return nil
	}
	return v
}

// indicator reads a navigation-quality value, which is a non-negative integer.
func (r fieldReader) indicator(key string) *int {
	v := r.int(key)
	if v != nil && *v < 0 {
		r.drop(key, fmt.Errorf("%d is negative", *v))
		return nil
	}
	return v
}

// text reads a free-text field that must fit a column of maxLen characters.
func (r fieldReader) text(key string, maxLen int) *string {
	v := String(r.raw[key])
	if v != nil && utf8.RuneCountInString(*v) > maxLen {
		r.drop(key, fmt.Errorf("%q longer than %d characters", *v, maxLen))
		return nil
	}
	return v
}

func (r fieldReader) emergency(key string) string {
	v := r.text(key, maxEmergencyLen)
	if v == nil {
		return model.EmergencyNone
	}
	return strings.ToLower(*v)
}

func (r fieldReader) altitude(key string) *int {
	if isGround(r.raw[key]) {
		zero := 0
		return &zero
	}
	return r.int(key)
}

func (r fieldReader) drop(key string, err error) {
	slog.Debug("dropping unparseable field", "hex", r.hex, "field", key, "error", err)
}
