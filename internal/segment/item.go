package segment

// Item is a single posting: hash token to document id, ordered
// lexicographically by (Hash, Id).
type Item struct {
	Hash uint32
	Id   uint32
}

func Less(a, b Item) bool {
	if a.Hash != b.Hash {
		return a.Hash < b.Hash
	}
	return a.Id < b.Id
}
