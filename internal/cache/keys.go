package cache

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Key kinds. Every key has the shape kind/<id>/<viewer> (or kind/<viewer>?…
// for viewer-wide lookups) so GameScope can match all entries of one game.
const (
	KindGame       = "game"
	KindPlayers    = "players"
	KindPlayerView = "view"
	KindUserGames  = "user-games"
	KindCounter    = "counter"
	KindBettable   = "bettable"
)

func viewerPart(viewer common.Address) string {
	if viewer == (common.Address{}) {
		return "anon"
	}
	return strings.ToLower(viewer.Hex())
}

func idKey(kind string, id uint64, viewer common.Address) string {
	return kind + "/" + strconv.FormatUint(id, 10) + "/" + viewerPart(viewer)
}

func GameKey(id uint64, viewer common.Address) string {
	return idKey(KindGame, id, viewer)
}

func PlayersKey(id uint64, viewer common.Address) string {
	return idKey(KindPlayers, id, viewer)
}

func PlayerViewKey(id uint64, viewer common.Address) string {
	return idKey(KindPlayerView, id, viewer)
}

func BettableKey(id uint64, viewer common.Address) string {
	return idKey(KindBettable, id, viewer)
}

func UserGamesKey(user common.Address, offset, limit uint64) string {
	return KindUserGames + "/" + viewerPart(user) +
		"?offset=" + strconv.FormatUint(offset, 10) +
		"&limit=" + strconv.FormatUint(limit, 10)
}

func CounterKey() string {
	return KindCounter
}

// GameScope matches every key belonging to one game id.
func GameScope(id uint64) string {
	return "/" + strconv.FormatUint(id, 10) + "/"
}

// ViewerScope matches every key scoped to viewer.
func ViewerScope(viewer common.Address) string {
	return viewerPart(viewer)
}

func kindOf(key string) string {
	if i := strings.IndexAny(key, "/?"); i >= 0 {
		return key[:i]
	}
	return key
}
