// Package docs swagger 文档，可由 swag init 重新生成覆盖
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"contact": {},
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/health": {
			"get": {
				"produces": [
					"application/json"
				],
				"tags": [
					"系统"
				],
				"summary": "健康检查",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/register": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"认证"
				],
				"summary": "学生注册",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/login": {
			"post": {
				"produces": [
					"application/json"
				],
				"tags": [
					"认证"
				],
				"summary": "登录",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/profile": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"认证"
				],
				"summary": "当前用户信息",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/dashboard": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"考试"
				],
				"summary": "学生考试面板",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/categories": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"分类"
				],
				"summary": "考试分类列表",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/exams/{id}": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"考试"
				],
				"summary": "考试详情",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/exams/{id}/start": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"考试"
				],
				"summary": "开始考试",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/exams/{id}/take": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"考试"
				],
				"summary": "答题页",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/exams/{id}/leaderboard": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"排行榜"
				],
				"summary": "单场考试排行榜",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/attempts/{id}/answers/{questionId}": {
			"put": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"作答"
				],
				"summary": "保存答案",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"type": "integer",
						"description": "questionId",
						"name": "questionId",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/attempts/{id}/submit": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"作答"
				],
				"summary": "交卷",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/attempts/{id}/result": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"作答"
				],
				"summary": "成绩详情",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/results": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"作答"
				],
				"summary": "我的成绩",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/leaderboard": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"排行榜"
				],
				"summary": "总排行榜",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/admin/dashboard": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "管理端统计",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/admin/categories": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "创建分类",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/admin/exams": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "考试列表（含未发布）",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			},
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "创建考试",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/admin/exams/{id}": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "考试详情（含题目与正确答案）",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			},
			"put": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "更新考试",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			},
			"delete": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "删除考试",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/admin/exams/{id}/publish": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "切换发布状态",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/admin/exams/{id}/attempts": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "考试作答列表",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/admin/exams/{id}/questions": {
			"get": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "题目列表",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			},
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "添加题目",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/admin/exams/{id}/import": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "批量导入题目",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/admin/questions/{id}": {
			"put": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "修改题目",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			},
			"delete": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "删除题目",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		},
		"/admin/questions/{id}/image": {
			"post": {
				"security": [
					{
						"BearerAuth": []
					}
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"管理端"
				],
				"summary": "上传题目配图",
				"parameters": [
					{
						"type": "integer",
						"description": "id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/util.Response"
						}
					}
				}
			}
		}
	},
	"definitions": {
		"util.Response": {
			"type": "object",
			"properties": {
				"code": {
					"type": "integer"
				},
				"data": {},
				"message": {
					"type": "string"
				}
			}
		}
	},
	"securityDefinitions": {
		"BearerAuth": {
			"type": "apiKey",
			"name": "Authorization",
			"in": "header"
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "NovaExam 后端 API",
	Description:      "NovaExam 在线考试平台的后端服务。",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
