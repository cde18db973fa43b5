package schema

import (
	"github.com/pagestore/pagestore/internal/storage"
)

// masterRootPage is the fixed root page of the system schema table,
// matching the file format's sqlite_master convention.
const masterRootPage = 1

// Load scans the system schema table and reconstructs every table and
// index definition, grounded on the teacher's GetTableDefinition walk
// of the master b-tree.
func Load(src storage.PageSource, parseColumns func(sql string) ([]Column, error)) (*Schema, error) {
	s := New()
	cur := storage.NewCursor(src, masterRootPage, true)
	ok, err := cur.Rewind()
	if err != nil {
		return nil, err
	}
	for ok {
		cellBytes, err := cur.Current()
		if err != nil {
			return nil, err
		}
		cell, err := storage.ParseLeafTableCell(src.PageSize(), cellBytes)
		if err != nil {
			return nil, err
		}
		payload := cell.InlinePayload
		if cell.OverflowPage != 0 {
			tail, err := storage.ReadOverflow(src, cell.OverflowPage, cell.PayloadSize-len(cell.InlinePayload))
			if err != nil {
				return nil, err
			}
			payload = append(append([]byte(nil), payload...), tail...)
		}

		layout, err := storage.ParseRecordHeader(payload)
		if err != nil {
			return nil, err
		}
		kindV, _ := layout.Value(0)
		nameV, _ := layout.Value(1)
		tblNameV, _ := layout.Value(2)
		rootV, _ := layout.Value(3)
		sqlV, _ := layout.Value(4)

		kind := ObjectKind(kindV.String())
		name := nameV.String()
		rootPage := int(rootV.Integer)
		sqlText := sqlV.String()

		switch kind {
		case KindTable:
			cols, err := parseColumns(sqlText)
			if err != nil {
				return nil, err
			}
			s.AddTable(NewTable(name, sqlText, rootPage, cols))
		case KindIndex:
			s.AddIndex(&Index{Name: name, RawSQL: sqlText, RootPage: rootPage, TableName: tblNameV.String()})
		}

		ok, err = cur.Next()
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// CreateTable writes a sqlite_master row describing the table at
// rootPage (a page the caller has already allocated) and registers the
// definition in the in-memory Schema.
func CreateTable(m *storage.Mutator, s *Schema, name, rawSQL string, cols []Column, rootPage int, nextMasterRowID int64) error {
	record := storage.EncodeRecord([]storage.Value{
		storage.TextValueString(string(KindTable)),
		storage.TextValueString(name),
		storage.TextValueString(name),
		storage.IntegerValue(int64(rootPage)),
		storage.TextValueString(rawSQL),
	})
	if err := m.InsertTableRow(masterRootPage, nextMasterRowID, record); err != nil {
		return err
	}
	s.AddTable(NewTable(name, rawSQL, rootPage, cols))
	return nil
}

// CreateIndex mirrors CreateTable for an index definition.
func CreateIndex(m *storage.Mutator, s *Schema, name, rawSQL, tableName string, columns []string, rootPage int, nextMasterRowID int64) error {
	record := storage.EncodeRecord([]storage.Value{
		storage.TextValueString(string(KindIndex)),
		storage.TextValueString(name),
		storage.TextValueString(tableName),
		storage.IntegerValue(int64(rootPage)),
		storage.TextValueString(rawSQL),
	})
	if err := m.InsertTableRow(masterRootPage, nextMasterRowID, record); err != nil {
		return err
	}
	s.AddIndex(&Index{Name: name, RawSQL: rawSQL, RootPage: rootPage, TableName: tableName, Columns: columns})
	return nil
}

// DropTable removes a table's sqlite_master row (located by scanning,
// since names aren't the b-tree key) and its in-memory definition.
// The table's own b-tree pages are left for the caller to return to
// the freelist, since that requires walking the subtree.
func DropTable(src storage.PageSource, m *storage.Mutator, s *Schema, name string) error {
	rowID, ok, err := findMasterRow(src, name)
	if err != nil {
		return err
	}
	if ok {
		if _, err := m.DeleteTableRow(masterRootPage, rowID); err != nil {
			return err
		}
	}
	s.DropTable(name)
	return nil
}

func DropIndex(src storage.PageSource, m *storage.Mutator, s *Schema, name string) error {
	rowID, ok, err := findMasterRow(src, name)
	if err != nil {
		return err
	}
	if ok {
		if _, err := m.DeleteTableRow(masterRootPage, rowID); err != nil {
			return err
		}
	}
	s.DropIndex(name)
	return nil
}

// findMasterRow scans the system schema table for the row whose name
// column matches name; the table is small enough in practice that a
// dedicated name index isn't worth the extra b-tree.
func findMasterRow(src storage.PageSource, name string) (int64, bool, error) {
	cur := storage.NewCursor(src, masterRootPage, true)
	ok, err := cur.Rewind()
	if err != nil {
		return 0, false, err
	}
	for ok {
		cellBytes, err := cur.Current()
		if err != nil {
			return 0, false, err
		}
		cell, err := storage.ParseLeafTableCell(src.PageSize(), cellBytes)
		if err != nil {
			return 0, false, err
		}
		layout, err := storage.ParseRecordHeader(cell.InlinePayload)
		if err != nil {
			return 0, false, err
		}
		nameV, err := layout.Value(1)
		if err == nil && nameV.String() == name {
			return cell.RowID, true, nil
		}
		ok, err = cur.Next()
		if err != nil {
			return 0, false, err
		}
	}
	return 0, false, nil
}
