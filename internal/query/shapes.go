package query

import (
	"gorm.io/gorm"

	"voeventdb/internal/models"
)

// The shapes below take a query already narrowed by Registry.Filtered. List
// shapes group by voevent.id so a coord join never repeats a packet; counts
// use COUNT(DISTINCT voevent.id) for the same reason.

const (
	nrefsSQL  = "(SELECT COUNT(*) FROM cite WHERE cite.voevent_id = voevent.id) AS count"
	ncitesSQL = "(SELECT COUNT(*) FROM cite WHERE cite.ref_ivorn = voevent.ivorn) AS count"

	// A reference whose target is not archived.
	danglingRefSQL = "NOT EXISTS (SELECT 1 FROM voevent AS target WHERE target.ivorn = cite.ref_ivorn)"

	distinctCount = "COUNT(DISTINCT voevent.id) AS count"
)

// KeyCount is one row of a grouped count.
type KeyCount struct {
	Key   *string
	Count int64
}

// StreamRoleCount is one row of the stream/role grouping.
type StreamRoleCount struct {
	Stream string
	Role   string
	Count  int64
}

// Count counts matching packets.
func Count(tx *gorm.DB) *gorm.DB {
	return tx.Select("COUNT(DISTINCT voevent.id)")
}

func IvornList(tx *gorm.DB, p Pagination) *gorm.DB {
	return p.Apply(tx.Select("voevent.ivorn").Group("voevent.id"))
}

func SummaryList(tx *gorm.DB, p Pagination) *gorm.DB {
	return p.Apply(tx.Select(models.SummaryColumns).Group("voevent.id"))
}

// IvornNRefs pairs each packet with the number of references it makes.
func IvornNRefs(tx *gorm.DB, p Pagination) *gorm.DB {
	return p.Apply(tx.Select("voevent.ivorn, " + nrefsSQL).Group("voevent.id"))
}

// IvornNCites pairs each packet with the number of references made to it.
func IvornNCites(tx *gorm.DB, p Pagination) *gorm.DB {
	return p.Apply(tx.Select("voevent.ivorn, " + ncitesSQL).Group("voevent.id"))
}

// MissingRefs lists distinct reference targets, made by matching packets,
// that are not in the archive. Ordered by target ivorn.
func MissingRefs(tx *gorm.DB, p Pagination) *gorm.DB {
	q := tx.Joins("JOIN cite ON cite.voevent_id = voevent.id").
		Where(danglingRefSQL).
		Select("DISTINCT cite.ref_ivorn").
		Order("cite.ref_ivorn")
	return p.Window(q)
}

// IvornsWithMissingRefs lists matching packets with at least one dangling
// reference.
func IvornsWithMissingRefs(tx *gorm.DB, p Pagination) *gorm.DB {
	return IvornList(tx.Where(
		"EXISTS (SELECT 1 FROM cite WHERE cite.voevent_id = voevent.id AND "+danglingRefSQL+")"), p)
}

func RoleCount(tx *gorm.DB) *gorm.DB {
	return tx.Select("voevent.role AS key, " + distinctCount).Group("voevent.role")
}

func StreamCount(tx *gorm.DB) *gorm.DB {
	return tx.Select("voevent.stream AS key, " + distinctCount).Group("voevent.stream")
}

func StreamRoleCounts(tx *gorm.DB) *gorm.DB {
	return tx.Select("voevent.stream, voevent.role, " + distinctCount).Group("voevent.stream, voevent.role")
}

// AuthoredMonthCount groups by UTC calendar month of author_datetime; packets
// with no author date form a NULL group.
func AuthoredMonthCount(tx *gorm.DB) *gorm.DB {
	return tx.Select("to_char(voevent.author_datetime AT TIME ZONE 'UTC', 'YYYY-MM') AS key, " + distinctCount).
		Group("key")
}

// NullMonthKey labels packets without an author date.
const NullMonthKey = "null"

// KeyCountMap folds grouped rows into a map, naming the NULL group nullKey.
func KeyCountMap(rows []KeyCount, nullKey string) map[string]int64 {
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		k := nullKey
		if r.Key != nil {
			k = *r.Key
		}
		out[k] += r.Count
	}
	return out
}

// NestStreamRoles folds stream/role rows into stream -> role -> count.
func NestStreamRoles(rows []StreamRoleCount) map[string]map[string]int64 {
	out := make(map[string]map[string]int64)
	for _, r := range rows {
		roles, ok := out[r.Stream]
		if !ok {
			roles = make(map[string]int64)
			out[r.Stream] = roles
		}
		roles[r.Role] = r.Count
	}
	return out
}
