package service

// 引入设备族插件，触发各平台的 init() 完成注册
import (
	_ "github.com/sshcollectorpro/batchscanner/addone/collect/platforms/eh"
	_ "github.com/sshcollectorpro/batchscanner/addone/collect/platforms/tg"
	_ "github.com/sshcollectorpro/batchscanner/addone/interact/platforms/eh"
	_ "github.com/sshcollectorpro/batchscanner/addone/interact/platforms/tg"
)
