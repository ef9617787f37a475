package segment

// ChangeKind is the tag of the Change union.
type ChangeKind string

const (
	ChangeInsert       ChangeKind = "insert"
	ChangeDelete       ChangeKind = "delete"
	ChangeSetAttribute ChangeKind = "set_attribute"
)

// Change is the tagged union `{insert:{id,hashes}} | {delete:{id}} |
// {set_attribute:{name,value}}` from a caller's Update request. Only
// the fields relevant to Kind are populated.
type Change struct {
	Kind ChangeKind `json:"kind"`

	Id     uint32   `json:"id,omitempty"`
	Hashes []uint32 `json:"hashes,omitempty"`

	Name  string `json:"name,omitempty"`
	Value uint64 `json:"value,omitempty"`
}

func Insert(id uint32, hashes []uint32) Change {
	return Change{Kind: ChangeInsert, Id: id, Hashes: hashes}
}

func Delete(id uint32) Change {
	return Change{Kind: ChangeDelete, Id: id}
}

func SetAttribute(name string, value uint64) Change {
	return Change{Kind: ChangeSetAttribute, Name: name, Value: value}
}
