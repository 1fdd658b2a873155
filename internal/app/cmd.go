package app

// Command はlibrarianの起動モードを表す。
type Command string

const (
	// CommandServe は推薦APIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの掃除などの定期ジョブを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate は埋め込みSQLマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中サーバーの/healthを確認して終了する。
	// シェルのないdistrolessイメージでHEALTHCHECKに使う。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は最初の引数からサブコマンドを決める。残りの引数は無視する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
