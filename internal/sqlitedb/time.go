package sqlitedb

import (
	"fmt"
	"time"
)

// Time exists to facilitate time parsing from catalog metadata, because
// SQLite files written by different tools use both unixtime and text strings
// to represent time. Derived from
// https://github.com/mattn/go-sqlite3/issues/190#issuecomment-343341834f
type Time time.Time

func (t *Time) Scan(v interface{}) error {
	switch which := v.(type) {
	case nil:
		*t = Time(time.Time{})
		return nil
	case time.Time:
		*t = Time(which)
		return nil
	case int64:
		*t = Time(time.Unix(which, 0))
		return nil
	case int:
		*t = Time(time.Unix(int64(which), 0))
		return nil
	case string:
		return t.parse(which)
	case []byte:
		return t.parse(string(which))
	}

	return fmt.Errorf("No appropriate type could be found to decode %v", v)
}

func (t *Time) parse(s string) error {
	vt, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return err
	}
	*t = Time(vt)
	return nil
}

// Unix is the value written back into INTEGER time columns.
func (t Time) Unix() int64 {
	return time.Time(t).Unix()
}

func (t Time) String() string {
	return time.Time(t).UTC().Format(time.RFC3339)
}
