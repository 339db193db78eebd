package types

// Standard table names. Each record kind is stored in its own table, and the
// table name doubles as the HTTP collection path (/notes, /wordGroups).
const (
	NotesTable      = "notes"
	UsersTable      = "users"
	WordsTable      = "words"
	WordGroupsTable = "wordGroups"
)

// Kind describes one record kind served by obay.
type Kind struct {
	Name       string // Singular name, e.g. "wordGroup".
	Table      string // Store table and collection path segment, e.g. "wordGroups".
	Definition string // Schema definition name, e.g. "#WordGroup".
}

// Standard record kinds.
var (
	KindNote      = Kind{Name: "note", Table: NotesTable, Definition: "#Note"}
	KindUser      = Kind{Name: "user", Table: UsersTable, Definition: "#User"}
	KindWord      = Kind{Name: "word", Table: WordsTable, Definition: "#Word"}
	KindWordGroup = Kind{Name: "wordGroup", Table: WordGroupsTable, Definition: "#WordGroup"}
)

// StandardKinds lists all standard record kinds for enumeration.
var StandardKinds = []Kind{
	KindNote,
	KindUser,
	KindWord,
	KindWordGroup,
}

// StandardTableNames lists all standard table names for enumeration.
var StandardTableNames = []string{
	NotesTable,
	UsersTable,
	WordsTable,
	WordGroupsTable,
}

// KindByName returns the standard kind with the given singular name.
func KindByName(name string) (Kind, bool) {
	for _, k := range StandardKinds {
		if k.Name == name {
			return k, true
		}
	}
	return Kind{}, false
}
