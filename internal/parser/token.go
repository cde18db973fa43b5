package parser

// TokenKind classifies one lexical token. The lexer is offset-based
// (it walks a byte slice with an explicit cursor) rather than the
// channel-fed goroutine style used elsewhere in the corpus: a parser
// this size doesn't need the concurrency. Each token's Text is copied
// out of the input as its own string; tokens do not borrow the input.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokError

	TokIdent
	TokNumber
	TokString
	TokParam // ?, ?NNN or :name

	TokComma
	TokDot
	TokLParen
	TokRParen
	TokStar
	TokSemicolon

	TokEq
	TokNeq
	TokLt
	TokLte
	TokGt
	TokGte

	TokPlus
	TokMinus
	TokSlash
	TokArrow // ->  json/path traversal operator

	// keywords
	TokSelect
	TokFrom
	TokWhere
	TokAnd
	TokOr
	TokNot
	TokInsert
	TokInto
	TokValues
	TokUpdate
	TokSet
	TokDelete
	TokCreate
	TokTable
	TokIndex
	TokOn
	TokDrop
	TokPrimary
	TokKey
	TokNull
	TokOrderBy
	TokGroupBy
	TokHaving
	TokBy
	TokAsc
	TokDesc
	TokLimit
	TokOffset
	TokUnion
	TokIntersect
	TokExcept
	TokAll
	TokAs
	TokJoin
	TokInner
	TokLeft
	TokOuter
	TokCase
	TokWhen
	TokThen
	TokElse
	TokEnd
	TokCast
	TokWith
	TokIs
	TokIn
	TokLike
	TokBetween
	TokInteger
	TokRealKw
	TokTextKw
	TokBlobKw
	TokUUIDKw
	TokDecimalKw
)

var keywords = map[string]TokenKind{
	"SELECT": TokSelect, "FROM": TokFrom, "WHERE": TokWhere,
	"AND": TokAnd, "OR": TokOr, "NOT": TokNot,
	"INSERT": TokInsert, "INTO": TokInto, "VALUES": TokValues,
	"UPDATE": TokUpdate, "SET": TokSet, "DELETE": TokDelete,
	"CREATE": TokCreate, "TABLE": TokTable, "INDEX": TokIndex, "ON": TokOn,
	"DROP": TokDrop, "PRIMARY": TokPrimary, "KEY": TokKey, "NULL": TokNull,
	"ORDER": TokOrderBy, "GROUP": TokGroupBy, "HAVING": TokHaving, "BY": TokBy,
	"ASC": TokAsc, "DESC": TokDesc, "LIMIT": TokLimit, "OFFSET": TokOffset,
	"UNION": TokUnion, "INTERSECT": TokIntersect, "EXCEPT": TokExcept,
	"ALL": TokAll, "AS": TokAs, "JOIN": TokJoin, "INNER": TokInner,
	"LEFT": TokLeft, "OUTER": TokOuter,
	"CASE": TokCase, "WHEN": TokWhen, "THEN": TokThen, "ELSE": TokElse, "END": TokEnd,
	"CAST": TokCast, "WITH": TokWith, "IS": TokIs, "IN": TokIn,
	"LIKE": TokLike, "BETWEEN": TokBetween,
	"INTEGER": TokInteger, "REAL": TokRealKw, "TEXT": TokTextKw, "BLOB": TokBlobKw,
	"UUID": TokUUIDKw, "DECIMAL": TokDecimalKw,
}

// Token is one classified token: a copy of its source text plus the
// byte offset where it starts.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}
