package app

// Command はエージェントの起動モードを表す。
type Command string

const (
	// CommandAgent は常駐モードで起動することを示す。
	CommandAgent Command = "agent"
	// CommandFlush はオフラインイベントログを1回フラッシュして終了することを示す。
	CommandFlush Command = "flush"
	// CommandStatus は現在の状態をJSONで出力することを示す。
	CommandStatus Command = "status"
	// CommandEnqueue は標準入力のイベントをオフラインイベントログに追記することを示す。
	CommandEnqueue Command = "enqueue"
	// CommandMigrate はPostgreSQLストアのマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はステータスサーバーのヘルスチェックを実行することを示す。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandAgentを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandAgent
	}

	switch Command(args[0]) {
	case CommandAgent, CommandFlush, CommandStatus, CommandEnqueue, CommandMigrate, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandAgent
	}
}
