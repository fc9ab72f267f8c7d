// Package lines реализует многолинейное управление вызовами: до
// восьми линий, каждая владеет не более чем одной сессией вызова
// (pkg/call), с курсором выбора, межлинейными политиками и
// составными операциями.
//
// # Политики
//
//   - MaxConcurrentCalls — потолок одновременных вызовов, проверяется
//     до набора нового вызова.
//   - AutoHoldOnNewCall — активная линия ставится на удержание до
//     того, как начнется набор на другой линии.
//
// # Составные операции
//
// SwapLines меняет ролями активную и удерживаемую линии, TransferCall
// переводит вызов и освобождает исходную линию, HangupAll завершает
// вызовы на всех занятых линиях.
//
// Агрегированные представления (занятые, звонящие, свободные линии)
// вычисляются при каждом обращении и никогда не кешируются.
//
// Пример:
//
//	cfg := lines.DefaultManagerConfig()
//	cfg.LineCount = 3
//	cfg.AutoHoldOnNewCall = true
//	cfg.Client = transportClient
//	cfg.Registry = lines.NewMemoryRegistry()
//
//	m := lines.NewManager(cfg)
//	lineNum, err := m.MakeCall(ctx, "sip:alice@example.com", lines.MakeCallOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = m.HoldLine(lineNum)
package lines
