package storage

import "strings"

// Predicate is a single condition on the items table, aliased as i.
type Predicate struct {
	Clause string
	Args   []interface{}
}

// TaggedWith matches items carrying the named tag.
func TaggedWith(tag string) Predicate {
	return Predicate{
		Clause: `i.id IN (SELECT it.item_id FROM item_tags it JOIN tags t ON t.id = it.tag_id WHERE t.name = ?)`,
		Args:   []interface{}{tag},
	}
}

// SelleredBy matches items owned by the user with the given username.
func SelleredBy(username string) Predicate {
	return Predicate{
		Clause: `i.user_id IN (SELECT u.id FROM users u WHERE u.username = ?)`,
		Args:   []interface{}{username},
	}
}

// FavoritedBy matches items favorited by the user with the given username.
func FavoritedBy(username string) Predicate {
	return Predicate{
		Clause: `i.id IN (SELECT f.item_id FROM favorites f JOIN users u ON u.id = f.user_id WHERE u.username = ?)`,
		Args:   []interface{}{username},
	}
}

// FollowedBy matches items whose owner is followed by userID.
func FollowedBy(userID int64) Predicate {
	return Predicate{
		Clause: `i.user_id IN (SELECT fo.followed_id FROM follows fo WHERE fo.follower_id = ?)`,
		Args:   []interface{}{userID},
	}
}

// ItemQuery selects a page of items. Where predicates are ANDed.
type ItemQuery struct {
	Where     []Predicate
	Ascending bool
	Offset    int
	Limit     int
}

// whereClause joins predicates with AND. It returns an empty clause when
// there are none.
func whereClause(preds []Predicate) (string, []interface{}) {
	if len(preds) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(preds))
	var args []interface{}
	for _, p := range preds {
		clauses = append(clauses, "("+p.Clause+")")
		args = append(args, p.Args...)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
