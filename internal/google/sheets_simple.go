package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"uborka/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	occurrencesSheetName = "Cleanings"
	scheduleSheetName    = "График"
)

var errRowNotFound = errors.New("row not found")

type SheetsService struct {
	service            *sheets.Service
	scheduleSheetID    string
	occurrencesSheetID string
	rowCache           map[int64]int
	cacheMu            sync.RWMutex
}

func NewSimpleSheetsService(credentialsFile, scheduleSheetID, occurrencesSheetID string) (*SheetsService, error) {
	ctx := context.Background()

	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	// Создаем JWT конфигурацию
	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	service := &SheetsService{
		service:            srv,
		scheduleSheetID:    scheduleSheetID,
		occurrencesSheetID: occurrencesSheetID,
		rowCache:           make(map[int64]int),
	}

	// Warm up cache in background
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := service.WarmUpCache(ctx); err != nil {
			fmt.Printf("Warning: failed to warm up sheets cache: %v\n", err)
		}
	}()

	// Периодически обновляем кэш, чтобы пережить ручные правки в таблице
	go func() {
		ticker := time.NewTicker(time.Duration(models.SheetsCacheTTL) * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := service.WarmUpCache(ctx); err != nil {
				fmt.Printf("Warning: failed to refresh sheets cache: %v\n", err)
			}
			cancel()
		}
	}()

	return service, nil
}

// TestConnection проверяет доступ к таблице уборок
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.occurrencesSheetID, occurrencesSheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to connect to sheets: %v", err)
	}
	return nil
}

// GetServiceAccountEmail возвращает email сервисного аккаунта из файла учетных данных
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", fmt.Errorf("unable to read credentials file: %v", err)
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(credentialsJSON, &creds); err != nil {
		return "", fmt.Errorf("unable to parse credentials: %v", err)
	}

	return creds.ClientEmail, nil
}

// WarmUpCache читает колонку ID и запоминает номера строк
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	readRange := occurrencesSheetName + "!A:A"
	resp, err := s.service.Spreadsheets.Values.Get(s.occurrencesSheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read ID column: %v", err)
	}

	cache := make(map[int64]int)
	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue // заголовок
		}
		if id, ok := cellToID(row[0]); ok {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()

	return nil
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCacheRow(id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache сбрасывает кэш строк
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

// cellToID разбирает значение ячейки колонки A. Sheets отдает числа как
// float64, а введенные руками значения как строки.
func cellToID(cell interface{}) (int64, bool) {
	switch v := cell.(type) {
	case float64:
		return int64(v), true
	case string:
		var id int64
		if _, err := fmt.Sscanf(v, "%d", &id); err == nil {
			return id, true
		}
	}
	return 0, false
}

// occurrenceRowValues собирает строку листа уборок: A:K
func occurrenceRowValues(o *models.Occurrence) []interface{} {
	paid := ""
	if o.IsPaid {
		paid = "да"
	}
	return []interface{}{
		o.ID,
		o.ClientID,
		o.CleanerID,
		o.ScheduledAt.Format("2006-01-02 15:04"),
		o.ServiceType,
		o.Status,
		paid,
		o.Price,
		o.Frequency,
		o.CreatedAt.Format("2006-01-02 15:04:05"),
		o.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// FindOccurrenceRow возвращает номер строки визита: сперва кэш, потом полный
// скан колонки A
func (s *SheetsService) FindOccurrenceRow(ctx context.Context, occurrenceID int64) (int, error) {
	if occurrenceID == 0 {
		return 0, fmt.Errorf("occurrence ID is zero")
	}

	if row, ok := s.getCachedRow(occurrenceID); ok {
		return row, nil
	}

	readRange := occurrencesSheetName + "!A:A"
	resp, err := s.service.Spreadsheets.Values.Get(s.occurrencesSheetID, readRange).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to read ID column: %v", err)
	}

	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue
		}
		if id, ok := cellToID(row[0]); ok && id == occurrenceID {
			rowNum := i + 1
			s.setCachedRow(occurrenceID, rowNum)
			return rowNum, nil
		}
	}

	return 0, errRowNotFound
}

// AppendOccurrence добавляет визит в конец листа
func (s *SheetsService) AppendOccurrence(ctx context.Context, o *models.Occurrence) error {
	if o == nil {
		return fmt.Errorf("occurrence is nil")
	}

	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{occurrenceRowValues(o)},
	}

	resp, err := s.service.Spreadsheets.Values.Append(s.occurrencesSheetID, occurrencesSheetName+"!A:A", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append occurrence %d: %v", o.ID, err)
	}

	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		var rowNum int
		if _, err := fmt.Sscanf(resp.Updates.UpdatedRange, occurrencesSheetName+"!A%d", &rowNum); err == nil {
			s.setCachedRow(o.ID, rowNum)
		}
	}

	return nil
}

// UpsertOccurrence обновляет строку визита или добавляет новую
func (s *SheetsService) UpsertOccurrence(ctx context.Context, o *models.Occurrence) error {
	if o == nil {
		return fmt.Errorf("occurrence is nil")
	}

	rowNum, err := s.FindOccurrenceRow(ctx, o.ID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return s.AppendOccurrence(ctx, o)
		}
		return err
	}

	writeRange := fmt.Sprintf("%s!A%d:K%d", occurrencesSheetName, rowNum, rowNum)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{occurrenceRowValues(o)},
	}

	_, err = s.service.Spreadsheets.Values.Update(s.occurrencesSheetID, writeRange, valueRange).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update occurrence %d: %v", o.ID, err)
	}

	return nil
}

// DeleteOccurrenceRow очищает строку визита. Строку не удаляем, чтобы не
// сдвигать кэшированные номера остальных строк.
func (s *SheetsService) DeleteOccurrenceRow(ctx context.Context, occurrenceID int64) error {
	rowNum, err := s.FindOccurrenceRow(ctx, occurrenceID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return nil // уже нет в таблице
		}
		return err
	}

	clearRange := fmt.Sprintf("%s!A%d:K%d", occurrencesSheetName, rowNum, rowNum)
	_, err = s.service.Spreadsheets.Values.Clear(s.occurrencesSheetID, clearRange, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear occurrence row %d: %v", rowNum, err)
	}

	s.deleteCacheRow(occurrenceID)
	return nil
}

// UpdateOccurrenceStatus точечно обновляет статус (колонка F) и updated_at
// (колонка K)
func (s *SheetsService) UpdateOccurrenceStatus(ctx context.Context, occurrenceID int64, status string) error {
	rowNum, err := s.FindOccurrenceRow(ctx, occurrenceID)
	if err != nil {
		return err
	}

	statusRange := fmt.Sprintf("%s!F%d:F%d", occurrencesSheetName, rowNum, rowNum)
	_, err = s.service.Spreadsheets.Values.Update(s.occurrencesSheetID, statusRange, &sheets.ValueRange{
		Values: [][]interface{}{{status}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update status for occurrence %d: %v", occurrenceID, err)
	}

	updatedRange := fmt.Sprintf("%s!K%d:K%d", occurrencesSheetName, rowNum, rowNum)
	_, err = s.service.Spreadsheets.Values.Update(s.occurrencesSheetID, updatedRange, &sheets.ValueRange{
		Values: [][]interface{}{{time.Now().Format("2006-01-02 15:04:05")}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update timestamp for occurrence %d: %v", occurrenceID, err)
	}

	return nil
}

// UpdateOccurrencesSheet перезаписывает лист начиная с заголовка
func (s *SheetsService) UpdateOccurrencesSheet(ctx context.Context, occs []*models.Occurrence) error {
	values := [][]interface{}{
		{"ID", "Клиент", "Клинер", "Дата", "Услуга", "Статус", "Оплачено", "Цена", "Частота", "Создано", "Обновлено"},
	}
	for _, o := range occs {
		values = append(values, occurrenceRowValues(o))
	}

	writeRange := fmt.Sprintf("%s!A1:K%d", occurrencesSheetName, len(values))
	_, err := s.service.Spreadsheets.Values.Update(s.occurrencesSheetID, writeRange, &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update occurrences sheet: %v", err)
	}

	return nil
}

// ReplaceOccurrencesSheet полностью заменяет данные листа и пересобирает кэш
func (s *SheetsService) ReplaceOccurrencesSheet(ctx context.Context, occs []*models.Occurrence) error {
	clearRange := occurrencesSheetName + "!A2:Z"
	_, err := s.service.Spreadsheets.Values.Clear(s.occurrencesSheetID, clearRange, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear occurrences sheet: %v", err)
	}

	if len(occs) == 0 {
		s.ClearCache()
		return nil
	}

	values := make([][]interface{}, 0, len(occs))
	for _, o := range occs {
		values = append(values, occurrenceRowValues(o))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.occurrencesSheetID, occurrencesSheetName+"!A2", &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write occurrences sheet: %v", err)
	}

	cache := make(map[int64]int, len(occs))
	for i, o := range occs {
		cache[o.ID] = i + 2
	}
	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()

	return nil
}

// UpdateScheduleSheet строит сетку расписания: клинеры по строкам, даты по
// колонкам
func (s *SheetsService) UpdateScheduleSheet(
	ctx context.Context,
	startDate, endDate time.Time,
	daily map[string][]*models.Occurrence,
	cleaners []models.Cleaner,
) error {
	if endDate.Before(startDate) {
		return fmt.Errorf("end date %s is before start date %s",
			endDate.Format("2006-01-02"), startDate.Format("2006-01-02"))
	}

	sheetID, err := s.GetSheetIdByName(ctx, s.scheduleSheetID, scheduleSheetName)
	if err != nil {
		return fmt.Errorf("failed to resolve schedule sheet: %v", err)
	}

	clearRange := scheduleSheetName + "!A:Z"
	if _, err := s.service.Spreadsheets.Values.Clear(s.scheduleSheetID, clearRange, &sheets.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to clear schedule sheet: %v", err)
	}

	headers, numDays := s.prepareDateHeaders(startDate, endDate)

	periodRow := []interface{}{fmt.Sprintf("Период: %s — %s",
		startDate.Format("02.01.2006"), endDate.Format("02.01.2006"))}

	values := [][]interface{}{periodRow, headers}
	cellRequests := []*sheets.Request{
		s.getPeriodHeaderFormat(sheetID),
		s.getDateHeadersFormat(sheetID, int64(numDays)+1),
	}

	active := activeCleaners(cleaners)
	if len(active) == 0 {
		values = append(values, s.prepareEmptyCleanersRow(numDays))
	}

	for rowIdx, cleaner := range active {
		rowData, cellFormats := s.prepareCleanerRowData(cleaner, startDate, numDays, daily)
		values = append(values, rowData)

		// Строки данных начинаются с третьей строки листа
		sheetRow := int64(rowIdx + 2)
		for colIdx, color := range cellFormats {
			if color == nil {
				continue
			}
			cellRequests = append(cellRequests, &sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:          sheetID,
						StartRowIndex:    sheetRow,
						EndRowIndex:      sheetRow + 1,
						StartColumnIndex: int64(colIdx + 1),
						EndColumnIndex:   int64(colIdx + 2),
					},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							BackgroundColor: color,
							WrapStrategy:    "WRAP",
						},
					},
					Fields: "userEnteredFormat(backgroundColor,wrapStrategy)",
				},
			})
		}
	}

	if _, err := s.service.Spreadsheets.Values.Update(s.scheduleSheetID, scheduleSheetName+"!A1", &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to write schedule grid: %v", err)
	}

	cellRequests = append(cellRequests, s.getCleanerNamesFormat(sheetID, int64(len(active))))
	cellRequests = append(cellRequests, s.adjustColumnWidths(sheetID, int64(numDays)+1)...)

	_, err = s.service.Spreadsheets.BatchUpdate(s.scheduleSheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: cellRequests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to format schedule sheet: %v", err)
	}

	return nil
}

// prepareDateHeaders возвращает строку заголовков дат и число колонок
func (s *SheetsService) prepareDateHeaders(startDate, endDate time.Time) ([]interface{}, int) {
	headers := []interface{}{"Клинер"}
	numDays := 0
	for d := startDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		headers = append(headers, d.Format("02.01"))
		numDays++
	}
	return headers, numDays
}

func (s *SheetsService) prepareEmptyCleanersRow(numDays int) []interface{} {
	row := make([]interface{}, numDays+1)
	row[0] = "Нет активных клинеров"
	for i := 1; i <= numDays; i++ {
		row[i] = ""
	}
	return row
}

func activeCleaners(cleaners []models.Cleaner) []models.Cleaner {
	active := make([]models.Cleaner, 0, len(cleaners))
	for _, c := range cleaners {
		if c.IsActive {
			active = append(active, c)
		}
	}
	return active
}

// prepareCleanerRowData собирает строку клинера и цвета ячеек по дням
func (s *SheetsService) prepareCleanerRowData(
	cleaner models.Cleaner,
	startDate time.Time,
	numDays int,
	daily map[string][]*models.Occurrence,
) ([]interface{}, []*sheets.Color) {
	rowData := []interface{}{cleaner.Name}
	cellFormats := make([]*sheets.Color, numDays)

	for i := 0; i < numDays; i++ {
		day := startDate.AddDate(0, 0, i)
		visits := filterCleanerOccurrences(daily[day.Format("2006-01-02")], cleaner.ID)
		val, color := s.formatScheduleCell(visits)
		rowData = append(rowData, val)
		cellFormats[i] = color
	}

	return rowData, cellFormats
}

// filterCleanerOccurrences оставляет визиты клинера без отмененных
func filterCleanerOccurrences(occs []*models.Occurrence, cleanerID int64) []*models.Occurrence {
	var out []*models.Occurrence
	for _, o := range occs {
		if o.CleanerID != cleanerID {
			continue
		}
		if o.Status == models.StatusCancelled {
			continue
		}
		out = append(out, o)
	}
	return out
}

// formatScheduleCell возвращает текст ячейки и цвет заливки.
// Пусто — серый, все визиты закрыты — зеленый, есть запланированные — желтый.
func (s *SheetsService) formatScheduleCell(visits []*models.Occurrence) (string, *sheets.Color) {
	if len(visits) == 0 {
		return "Свободно", &sheets.Color{Red: 0.95, Green: 0.95, Blue: 0.95}
	}

	text := ""
	pending := false
	for i, v := range visits {
		if i > 0 {
			text += "\n"
		}
		text += fmt.Sprintf("%s клиент %d %s", v.ScheduledAt.Format("15:04"), v.ClientID, statusEmoji(v.Status))
		if v.IsPaid {
			text += " 💰"
		}
		if v.Status == models.StatusScheduled {
			pending = true
		}
	}

	if pending {
		return text, &sheets.Color{Red: 1.0, Green: 0.95, Blue: 0.6}
	}
	return text, &sheets.Color{Red: 0.7, Green: 0.95, Blue: 0.7}
}

func statusEmoji(status string) string {
	switch status {
	case models.StatusScheduled:
		return "⏳"
	case models.StatusCleanerCompleted, models.StatusCompleted:
		return "✅"
	case models.StatusNoShow:
		return "❓"
	default:
		return ""
	}
}

func (s *SheetsService) getPeriodHeaderFormat(sheetID int64) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:       sheetID,
				StartRowIndex: 0,
				EndRowIndex:   1,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					TextFormat: &sheets.TextFormat{
						Bold:     true,
						FontSize: 12,
					},
				},
			},
			Fields: "userEnteredFormat.textFormat",
		},
	}
}

func (s *SheetsService) getDateHeadersFormat(sheetID, numColumns int64) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    1,
				EndRowIndex:      2,
				StartColumnIndex: 0,
				EndColumnIndex:   numColumns,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					TextFormat: &sheets.TextFormat{
						Bold: true,
					},
					BackgroundColor:     &sheets.Color{Red: 0.85, Green: 0.9, Blue: 1.0},
					HorizontalAlignment: "CENTER",
				},
			},
			Fields: "userEnteredFormat(textFormat,backgroundColor,horizontalAlignment)",
		},
	}
}

func (s *SheetsService) getCleanerNamesFormat(sheetID, numCleaners int64) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    2,
				EndRowIndex:      numCleaners + 3,
				StartColumnIndex: 0,
				EndColumnIndex:   1,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					TextFormat: &sheets.TextFormat{
						Bold: true,
					},
				},
			},
			Fields: "userEnteredFormat.textFormat",
		},
	}
}

func (s *SheetsService) adjustColumnWidths(sheetID, numColumns int64) []*sheets.Request {
	return []*sheets.Request{
		{
			UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   1,
				},
				Properties: &sheets.DimensionProperties{PixelSize: 180},
				Fields:     "pixelSize",
			},
		},
		{
			UpdateDimensionProperties: &sheets.UpdateDimensionPropertiesRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 1,
					EndIndex:   numColumns,
				},
				Properties: &sheets.DimensionProperties{PixelSize: 140},
				Fields:     "pixelSize",
			},
		},
	}
}

// GetSheetIdByName находит числовой ID листа по его названию
func (s *SheetsService) GetSheetIdByName(ctx context.Context, spreadsheetID, sheetName string) (int64, error) {
	resp, err := s.service.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get spreadsheet: %v", err)
	}

	for _, sheet := range resp.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == sheetName {
			return sheet.Properties.SheetId, nil
		}
	}

	return 0, fmt.Errorf("sheet %q not found", sheetName)
}
