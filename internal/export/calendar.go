// Package export renders studio calendar views as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"studiorent/internal/happyhour"
	"studiorent/internal/model"
)

const timeLayout = "2006-01-02 15:04"

// Calendar is one studio's calendar over [Start, End).
type Calendar struct {
	Studio     model.Studio
	Location   *time.Location
	Start      time.Time
	End        time.Time
	Blocks     []model.CalendarBlock
	HappyHours []happyhour.Occurrence
}

var blockColumns = []string{"Room", "Start", "End", "Minutes", "Type", "Status", "Blocking", "Title", "Note"}

var happyHourColumns = []string{"Room", "Start", "End", "Minutes"}

// WriteCalendar writes a workbook with a "Blocks" and a "Happy hours" sheet.
// Times are shown on the studio's wall clock.
func WriteCalendar(wr io.Writer, cal Calendar) error {
	loc := cal.Location
	if loc == nil {
		loc = time.UTC
	}
	rooms := make(map[string]string, len(cal.Studio.Rooms))
	for _, r := range cal.Studio.Rooms {
		rooms[r.ID] = r.Name
	}
	roomName := func(id string) string {
		if name := rooms[id]; name != "" {
			return name
		}
		return id
	}

	w := newSheetWriter()
	defer w.Close()

	if err := w.AddSheet("Blocks"); err != nil {
		return err
	}
	if err := w.WriteHeader(blockColumns); err != nil {
		return err
	}
	for i := range cal.Blocks {
		b := &cal.Blocks[i]
		err := w.WriteRow([]any{
			roomName(b.RoomID),
			b.StartAt.In(loc).Format(timeLayout),
			b.EndAt.In(loc).Format(timeLayout),
			int(b.Duration() / time.Minute),
			string(b.Type),
			string(b.Approval),
			b.IsBlocking(),
			b.Title,
			b.Note,
		})
		if err != nil {
			return fmt.Errorf("write block %s: %w", b.ID, err)
		}
	}

	if err := w.AddSheet("Happy hours"); err != nil {
		return err
	}
	if err := w.WriteHeader(happyHourColumns); err != nil {
		return err
	}
	for _, occ := range cal.HappyHours {
		err := w.WriteRow([]any{
			roomName(occ.RoomID),
			occ.StartAt.In(loc).Format(timeLayout),
			occ.EndAt.In(loc).Format(timeLayout),
			int(occ.EndAt.Sub(occ.StartAt) / time.Minute),
		})
		if err != nil {
			return fmt.Errorf("write happy hour: %w", err)
		}
	}

	return w.Save(wr)
}

// FileName suggests a download name for the workbook.
func FileName(studioID string, start, end time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("calendar_%s_%s_%s.xlsx", studioID, start.In(loc).Format("20060102"), end.In(loc).Format("20060102"))
}
