// Package call реализует сессию одного вызова: конечный автомат
// жизненного цикла (dial → ring → answer → hold/resume → hangup),
// сериализацию мутирующих операций и протокол подтверждения hold/resume.
//
// Пакет не знает о wire-протоколе: сигнальный слой и медиа устройства
// подключаются через интерфейсы TransportClient и MediaProvider.
//
// # Ключевые гарантии
//
//   - Не более одной мутирующей операции на сессию одновременно;
//     вторая завершается ошибкой OperationInProgress без побочных
//     эффектов, guard освобождается на любом пути выхода.
//   - Hold/Unhold переводят состояние только по нотификации транспорта,
//     а не по результату вызова примитива; без подтверждения за
//     HoldTimeout состояние откатывается.
//   - Медиа треки, захваченные до неудачного Dial/Answer, освобождаются
//     ровно один раз до возврата ошибки.
//
// Пример исходящего вызова:
//
//	cfg := call.DefaultConfig()
//	cfg.Client = transportClient
//	cfg.Media = mediaProvider
//
//	s := call.NewSession(cfg)
//	if err := s.Dial(ctx, "sip:bob@example.com", call.CallOptions{Audio: true}); err != nil {
//		log.Printf("вызов не установлен: %v", err)
//		return
//	}
//	defer s.Close()
//
//	_ = s.Hold()
//	_ = s.Unhold()
//	_ = s.Hangup()
package call
